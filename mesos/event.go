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

package mesos

// Event is a lifecycle notification emitted by a Source
type Event interface {
	IsEvent()
}

// Subscribed is emitted once the source holds a live session with the master.
// It is emitted again after every successful reconnect.
type Subscribed struct{}

func (Subscribed) IsEvent() {}

// Unsubscribed is emitted when the session with the master is lost
type Unsubscribed struct{}

func (Unsubscribed) IsEvent() {}

// Error carries an upstream failure that did not end the session
type Error struct {
	Err error
}

func (Error) IsEvent() {}

// Reconciled carries the full task list requested through Source.Reconcile
type Reconciled struct {
	Tasks []*Task
}

func (Reconciled) IsEvent() {}

// TaskAdded is emitted when the master learns about a new task.
// The task is usually not running yet.
type TaskAdded struct {
	Task *Task
}

func (TaskAdded) IsEvent() {}

// TaskUpdated is emitted on every task status change
type TaskUpdated struct {
	Task *Task
}

func (TaskUpdated) IsEvent() {}

// AgentAdded is emitted when an agent registers with the master
type AgentAdded struct {
	Agent *Agent
}

func (AgentAdded) IsEvent() {}

// AgentRemoved is emitted when an agent leaves the cluster
type AgentRemoved struct {
	AgentID string
}

func (AgentRemoved) IsEvent() {}
