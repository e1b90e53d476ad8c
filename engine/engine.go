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

// Package engine keeps the service endpoint cache in line with the cluster.
//
// The engine consumes the lifecycle events of a mesos.Source on a single loop.
// That loop is the only writer of the agent directory and of the service cache,
// so a task update always sees a consistent directory. Queries read the cache
// concurrently and are never blocked by the upstream fetches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tochemey/mesosds/cache"
	"github.com/tochemey/mesosds/internal/directory"
	"github.com/tochemey/mesosds/internal/metric"
	"github.com/tochemey/mesosds/internal/scheduler"
	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mesos"
)

const (
	// DefaultReconcileInterval is the default period of the full state reconciliation
	DefaultReconcileInterval = 10 * time.Minute
	// DefaultShutdownTimeout is the default time Stop waits for the loop to exit
	DefaultShutdownTimeout = 5 * time.Second

	reconcileJobKey = "mesosds.reconcile"
)

var (
	// ErrEngineNotStarted is returned when Stop is called on an engine that is not running
	ErrEngineNotStarted = errors.New("engine: not started")
	// ErrEngineAlreadyStarted is returned when Start is called twice
	ErrEngineAlreadyStarted = errors.New("engine: already started")
)

// Engine reconciles the service cache with the events of a mesos.Source
type Engine struct {
	source    mesos.Source
	directory *directory.Directory
	cache     *cache.Cache
	scheduler *scheduler.Scheduler

	logger            log.Logger
	reconcileInterval time.Duration
	shutdownTimeout   time.Duration
	clock             func() time.Time

	meterProvider otelmetric.MeterProvider
	metrics       *metric.EngineMetric
	registration  otelmetric.Registration

	mu      sync.Mutex
	started *atomic.Bool
	state   *atomic.Int32
	ticks   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an Engine on top of the given source. The engine owns the
// source: it is subscribed on Start and closed on Stop.
func New(source mesos.Source, opts ...Option) *Engine {
	engine := &Engine{
		source:            source,
		directory:         directory.New(),
		logger:            log.DefaultLogger,
		reconcileInterval: DefaultReconcileInterval,
		shutdownTimeout:   DefaultShutdownTimeout,
		clock:             time.Now,
		started:           atomic.NewBool(false),
		state:             atomic.NewInt32(int32(Unsubscribed)),
	}

	for _, opt := range opts {
		opt.Apply(engine)
	}

	engine.cache = cache.New(engine.now())
	engine.scheduler = scheduler.New(engine.logger, engine.shutdownTimeout)
	return engine
}

// Start subscribes to the source and starts the processing loop.
// The initial load happens asynchronously once the source reports Subscribed.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started.Load() {
		return ErrEngineAlreadyStarted
	}

	metrics, err := metric.NewEngineMetric(metric.NewProvider(e.meterProvider).Meter())
	if err != nil {
		return fmt.Errorf("engine: failed to create metrics: %w", err)
	}

	registration, err := metrics.Observe(e.gauges)
	if err != nil {
		return fmt.Errorf("engine: failed to observe metrics: %w", err)
	}

	// the loop outlives the start context
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := e.source.Subscribe(loopCtx)
	if err != nil {
		cancel()
		return multierr.Combine(fmt.Errorf("engine: failed to subscribe to source=(%s): %w", e.source.ID(), err), registration.Unregister())
	}

	e.scheduler.Start(loopCtx)

	e.metrics = metrics
	e.registration = registration
	e.ctx = loopCtx
	e.cancel = cancel
	e.ticks = make(chan struct{}, 1)
	e.done = make(chan struct{})
	e.started.Store(true)

	go e.run(events)

	e.logger.Infof("engine started on source=(%s), reconcile interval=(%s)", e.source.ID(), e.reconcileInterval)
	return nil
}

// Stop stops the loop and the periodic reconciliation, then closes the source.
// The cache stays readable after Stop.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started.Load() {
		return ErrEngineNotStarted
	}

	e.logger.Info("stopping engine...")
	e.scheduler.Stop(ctx)
	e.cancel()

	ctx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	var err error
	select {
	case <-e.done:
	case <-ctx.Done():
		err = fmt.Errorf("engine: loop did not exit in time: %w", ctx.Err())
	}

	err = multierr.Combine(
		err,
		e.source.Close(),
		e.registration.Unregister(),
	)

	e.started.Store(false)
	e.setState(Unsubscribed)

	if err != nil {
		e.logger.Errorf("engine stopped with errors: %v", err)
		return err
	}

	e.logger.Info("engine stopped")
	return nil
}

// GetService returns the endpoints of the given service ordered by task id.
// Unknown services yield an empty slice.
func (e *Engine) GetService(serviceName string) []cache.Endpoint {
	return e.cache.Endpoints(serviceName)
}

// Snapshot returns a copy of every known service
func (e *Engine) Snapshot() []*cache.Service {
	return e.cache.Snapshot()
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Agents returns the number of known agents
func (e *Engine) Agents() int {
	return e.directory.Len()
}

func (e *Engine) run(events <-chan mesos.Event) {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				e.logger.Warnf("source=(%s) closed its events channel", e.source.ID())
				e.setState(Unsubscribed)
				return
			}
			e.handle(event)
		case <-e.ticks:
			e.reconcile()
		}
	}
}

func (e *Engine) handle(event mesos.Event) {
	e.metrics.RecordEvent(e.ctx, eventType(event))

	switch evt := event.(type) {
	case mesos.Subscribed:
		e.logger.Infof("subscribed to source=(%s)", e.source.ID())
		e.setState(Subscribed)
		e.load()
		e.schedule()
		e.setState(Running)
	case mesos.Unsubscribed:
		e.logger.Infof("unsubscribed from source=(%s)", e.source.ID())
		// the reconcile job keeps running and its ticks are skipped until the next Subscribed
		e.setState(Unsubscribed)
	case mesos.Error:
		e.logger.Errorf("source=(%s) reported an error: %v", e.source.ID(), evt.Err)
	case mesos.Reconciled:
		e.logger.Infof("received reconciliation result with %d tasks", len(evt.Tasks))
		e.metrics.RecordReconciliation(e.ctx)
		e.updateTasks(evt.Tasks)
	case mesos.TaskAdded:
		if evt.Task != nil {
			e.logger.Debugf("task=(%s) added, waiting for it to run", evt.Task.ID)
		}
	case mesos.TaskUpdated:
		e.updateTask(evt.Task, e.now())
	case mesos.AgentAdded:
		if evt.Agent == nil {
			return
		}
		if !evt.Agent.Active {
			e.logger.Debugf("agent=(%s) is not active, ignoring", evt.Agent.ID)
			return
		}
		if e.directory.Upsert(evt.Agent.ID, evt.Agent.Hostname) {
			e.logger.Debugf("agent=(%s) added at host=(%s)", evt.Agent.ID, evt.Agent.Hostname)
		}
	case mesos.AgentRemoved:
		// endpoints already resolved on that agent are left until their task changes
		if e.directory.Remove(evt.AgentID) {
			e.logger.Debugf("agent=(%s) removed", evt.AgentID)
		}
	default:
		e.logger.Warnf("ignoring unsupported event %T", event)
	}
}

// load fetches the agents then the tasks. A failed fetch is logged and the
// periodic reconciliation fills the gap.
func (e *Engine) load() {
	agents, err := e.source.Agents(e.ctx)
	if err != nil {
		e.logger.Errorf("failed to fetch agents from source=(%s): %v", e.source.ID(), err)
	} else {
		loaded := e.directory.LoadAll(agents)
		e.logger.Infof("loaded %d active agents out of %d", loaded, len(agents))
	}

	tasks, err := e.source.Tasks(e.ctx)
	if err != nil {
		e.logger.Errorf("failed to fetch tasks from source=(%s): %v", e.source.ID(), err)
		return
	}

	e.logger.Infof("loaded %d tasks", len(tasks))
	e.updateTasks(tasks)
}

func (e *Engine) schedule() {
	err := e.scheduler.Every(reconcileJobKey, e.reconcileInterval, func(context.Context) error {
		select {
		case e.ticks <- struct{}{}:
		default:
			// a reconciliation is already pending
		}
		return nil
	})
	if err != nil {
		e.logger.Errorf("failed to schedule reconciliation: %v", err)
	}
}

func (e *Engine) reconcile() {
	if e.State() != Running {
		e.logger.Debugf("skipping reconciliation in state=(%s)", e.State())
		return
	}

	e.logger.Info("requesting reconciliation")
	if err := e.source.Reconcile(e.ctx); err != nil {
		e.logger.Errorf("failed to request reconciliation from source=(%s): %v", e.source.ID(), err)
	}
}

func (e *Engine) setState(state State) {
	e.state.Store(int32(state))
}

func (e *Engine) now() int64 {
	return e.clock().UnixMilli()
}

func (e *Engine) gauges() metric.Gauges {
	services, endpoints := e.cache.Stats()
	return metric.Gauges{
		Services:  int64(services),
		Endpoints: int64(endpoints),
		Agents:    int64(e.directory.Len()),
	}
}

func eventType(event mesos.Event) string {
	switch event.(type) {
	case mesos.Subscribed:
		return "subscribed"
	case mesos.Unsubscribed:
		return "unsubscribed"
	case mesos.Error:
		return "error"
	case mesos.Reconciled:
		return "reconciled"
	case mesos.TaskAdded:
		return "task_added"
	case mesos.TaskUpdated:
		return "task_updated"
	case mesos.AgentAdded:
		return "agent_added"
	case mesos.AgentRemoved:
		return "agent_removed"
	default:
		return "unknown"
	}
}
