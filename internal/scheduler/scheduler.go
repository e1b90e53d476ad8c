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

// Package scheduler runs named periodic jobs on top of go-quartz.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"

	"github.com/tochemey/mesosds/log"
)

// ErrSchedulerNotStarted is returned when a job is scheduled before Start
var ErrSchedulerNotStarted = errors.New("scheduler: not started")

// Scheduler runs functions at a fixed interval. Jobs are identified by a key
// and scheduling a key twice replaces the previous job.
type Scheduler struct {
	// helps lock concurrent access
	mu sync.Mutex
	// underlying quartz scheduler
	quartzScheduler quartz.Scheduler
	// states whether the quartzScheduler has started or not
	started     *atomic.Bool
	logger      log.Logger
	stopTimeout time.Duration
}

// New creates an instance of Scheduler
func New(logger log.Logger, stopTimeout time.Duration) *Scheduler {
	// create an instance of quartz scheduler with logger off
	quartzScheduler, _ := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))

	return &Scheduler{
		started:         atomic.NewBool(false),
		quartzScheduler: quartzScheduler,
		logger:          logger,
		stopTimeout:     stopTimeout,
	}
}

// Start starts the scheduler
func (x *Scheduler) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started.Load() {
		return
	}
	x.quartzScheduler.Start(ctx)
	x.started.Store(x.quartzScheduler.IsStarted())
	x.logger.Debug("scheduler started")
}

// Stop removes every job and waits for the running ones to finish
func (x *Scheduler) Stop(ctx context.Context) {
	if !x.started.Load() {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	_ = x.quartzScheduler.Clear()
	x.quartzScheduler.Stop()
	x.started.Store(x.quartzScheduler.IsStarted())

	ctx, cancel := context.WithTimeout(ctx, x.stopTimeout)
	defer cancel()
	x.quartzScheduler.Wait(ctx)
	x.logger.Debug("scheduler stopped")
}

// Every runs fn every interval under the given key. The first run happens one
// interval after the call. An existing job with the same key is replaced.
func (x *Scheduler) Every(key string, interval time.Duration, fn func(ctx context.Context) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.Load() {
		return ErrSchedulerNotStarted
	}

	jobKey := quartz.NewJobKey(key)
	if err := x.quartzScheduler.DeleteJob(jobKey); err != nil && !errors.Is(err, quartz.ErrJobNotFound) {
		return fmt.Errorf("scheduler: failed to replace job %s: %w", key, err)
	}

	functionJob := job.NewFunctionJob[bool](
		func(ctx context.Context) (bool, error) {
			err := fn(ctx)
			return err == nil, err
		},
	)

	detail := quartz.NewJobDetail(functionJob, jobKey)
	return x.quartzScheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(interval))
}

// IsScheduled reports whether a job is registered under the given key
func (x *Scheduler) IsScheduled(key string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.Load() {
		return false
	}

	_, err := x.quartzScheduler.GetScheduledJob(quartz.NewJobKey(key))
	return err == nil
}
