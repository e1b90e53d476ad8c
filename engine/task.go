// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package engine

import (
	"github.com/tochemey/mesosds/internal/resolver"
	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mesos"
)

// updateTasks applies a full task list with a single timestamp
func (e *Engine) updateTasks(tasks []*mesos.Task) {
	timestamp := e.now()
	for _, task := range tasks {
		e.updateTask(task, timestamp)
	}

	if e.logger.Enabled(log.DebugLevel) {
		services, endpoints := e.cache.Stats()
		e.logger.Debugf("cache holds %d services and %d endpoints", services, endpoints)
	}
}

// updateTask publishes a running task and withdraws a terminated one.
//
// A running task is filed under its discovery name. A terminal update rarely
// carries discovery info, so its service name is derived from the task id by
// dropping the last dot segment. Both conventions must agree for a removal to
// hit.
func (e *Engine) updateTask(task *mesos.Task, timestamp int64) {
	if task == nil || task.ID == "" {
		return
	}

	switch {
	case task.State.IsRunning():
		resolution, err := resolver.Resolve(task, e.directory)
		if err != nil {
			e.metrics.RecordUnresolved(e.ctx, resolver.Reason(err))
			e.logger.Debugf("task=(%s) not published: %v", task.ID, err)
			return
		}

		if e.cache.Upsert(resolution.ServiceName, resolution.Record, timestamp) {
			e.metrics.RecordUpsert(e.ctx)
			e.logger.Debugf("task=(%s) published under service=(%s) at %s:%d",
				task.ID, resolution.ServiceName, resolution.Record.IPAddress, resolution.Record.Port)
		}
	case task.State.IsTerminal():
		serviceName := resolver.ServiceNameFromTaskID(task.ID)
		if serviceName == "" {
			e.logger.Debugf("task=(%s) has no service name to withdraw from", task.ID)
			return
		}

		if e.cache.Remove(serviceName, task.ID) {
			e.metrics.RecordRemoval(e.ctx)
			e.logger.Debugf("task=(%s) withdrawn from service=(%s) on %s", task.ID, serviceName, task.State)
		}
	}
}
