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

// Package memory provides an in-process mesos.Source whose state is set by the caller.
// It is meant for tests and for embedders that already hold the cluster state.
package memory

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/mesosds/mesos"
)

const defaultBufferSize = 64

// Source is a programmable mesos.Source
type Source struct {
	bufferSize int

	mu        sync.RWMutex
	agents    []*mesos.Agent
	tasks     []*mesos.Task
	taskIndex map[string]int
	agentsErr error
	tasksErr  error

	eventsMu   sync.RWMutex
	events     chan mesos.Event
	done       chan struct{}
	wg         sync.WaitGroup
	subscribed *atomic.Bool
	closed     *atomic.Bool
}

var _ mesos.Source = (*Source)(nil)

// New creates an instance of Source
func New(opts ...Option) *Source {
	source := &Source{
		bufferSize: defaultBufferSize,
		taskIndex:  make(map[string]int),
		done:       make(chan struct{}),
		subscribed: atomic.NewBool(false),
		closed:     atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(source)
	}
	return source
}

// ID returns the source name
func (s *Source) ID() string {
	return "memory"
}

// Subscribe returns the events channel. Subscribed is the first event emitted.
func (s *Source) Subscribe(context.Context) (<-chan mesos.Event, error) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	if s.closed.Load() {
		return nil, mesos.ErrSourceClosed
	}

	if s.subscribed.Load() {
		return nil, mesos.ErrAlreadySubscribed
	}

	s.events = make(chan mesos.Event, s.bufferSize)
	s.events <- mesos.Subscribed{}
	s.subscribed.Store(true)
	return s.events, nil
}

// SetAgents replaces the agent list
func (s *Source) SetAgents(agents ...*mesos.Agent) {
	s.mu.Lock()
	s.agents = append([]*mesos.Agent(nil), agents...)
	s.mu.Unlock()
}

// SetTasks replaces the task list
func (s *Source) SetTasks(tasks ...*mesos.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make([]*mesos.Task, 0, len(tasks))
	s.taskIndex = make(map[string]int, len(tasks))
	for _, task := range tasks {
		s.upsertTask(task)
	}
}

// UpsertTask adds or replaces a single task of the task list
func (s *Source) UpsertTask(task *mesos.Task) {
	s.mu.Lock()
	s.upsertTask(task)
	s.mu.Unlock()
}

// RemoveTask drops a task from the task list without emitting anything
func (s *Source) RemoveTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.taskIndex[taskID]
	if !ok {
		return
	}

	s.tasks = append(s.tasks[:index], s.tasks[index+1:]...)
	delete(s.taskIndex, taskID)
	for i := index; i < len(s.tasks); i++ {
		s.taskIndex[s.tasks[i].ID] = i
	}
}

// SetAgentsError makes Agents fail with err. A nil err restores the normal behavior.
func (s *Source) SetAgentsError(err error) {
	s.mu.Lock()
	s.agentsErr = err
	s.mu.Unlock()
}

// SetTasksError makes Tasks fail with err. A nil err restores the normal behavior.
func (s *Source) SetTasksError(err error) {
	s.mu.Lock()
	s.tasksErr = err
	s.mu.Unlock()
}

// Agents returns the agent list
func (s *Source) Agents(context.Context) ([]*mesos.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return nil, mesos.ErrSourceClosed
	}
	if s.agentsErr != nil {
		return nil, s.agentsErr
	}
	return append([]*mesos.Agent(nil), s.agents...), nil
}

// Tasks returns the task list
func (s *Source) Tasks(context.Context) ([]*mesos.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return nil, mesos.ErrSourceClosed
	}
	if s.tasksErr != nil {
		return nil, s.tasksErr
	}
	return append([]*mesos.Task(nil), s.tasks...), nil
}

// Reconcile emits the current task list as a Reconciled event.
// The event is delivered asynchronously so that a consumer can call Reconcile
// from the loop that drains the events channel.
func (s *Source) Reconcile(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed.Load() {
		return mesos.ErrSourceClosed
	}

	if !s.subscribed.Load() {
		return mesos.ErrNotSubscribed
	}

	if s.tasksErr != nil {
		return s.tasksErr
	}

	tasks := append([]*mesos.Task(nil), s.tasks...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Publish(context.Background(), mesos.Reconciled{Tasks: tasks})
	}()
	return nil
}

// Publish emits the given event. It blocks until the event is buffered,
// the context is done or the source is closed.
func (s *Source) Publish(ctx context.Context, event mesos.Event) error {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()

	if s.closed.Load() {
		return mesos.ErrSourceClosed
	}

	if !s.subscribed.Load() {
		return mesos.ErrNotSubscribed
	}

	select {
	case s.events <- event:
		return nil
	case <-s.done:
		return mesos.ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the events channel. Closing twice is a no-op.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.done)

	// no Reconcile can register a publisher past this point
	s.mu.Lock()
	s.mu.Unlock()

	s.eventsMu.Lock()
	if s.events != nil {
		close(s.events)
	}
	s.eventsMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Source) upsertTask(task *mesos.Task) {
	if task == nil {
		return
	}

	if index, ok := s.taskIndex[task.ID]; ok {
		s.tasks[index] = task
		return
	}

	s.taskIndex[task.ID] = len(s.tasks)
	s.tasks = append(s.tasks, task)
}
