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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"

	"github.com/tochemey/mesosds/cache"
	"github.com/tochemey/mesosds/eventsource/memory"
	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mesos"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func webTask(id string, state mesos.TaskState) *mesos.Task {
	return &mesos.Task{
		ID:      id,
		AgentID: "a1",
		State:   state,
		Labels:  []mesos.Label{{Key: "ENVOY_PORT_INDEX", Value: "0"}},
		Discovery: &mesos.Discovery{
			Name:  "web",
			Ports: []mesos.Port{{Number: 31000}},
		},
	}
}

// newSource creates a source with a single slot buffer: once a publish
// returns, every event published two steps before has been fully applied.
func newSource() *memory.Source {
	return memory.New(memory.WithBufferSize(1))
}

func startEngine(t *testing.T, source *memory.Source, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(log.DiscardLogger)}, opts...)
	engine := New(source, opts...)
	require.NoError(t, engine.Start(context.Background()))
	require.Eventually(t, func() bool { return engine.State() == Running }, waitFor, tick)
	return engine
}

// publishAndWait publishes the events and returns once they are all applied
func publishAndWait(t *testing.T, source *memory.Source, events ...mesos.Event) {
	t.Helper()
	ctx := context.Background()
	events = append(events, mesos.TaskAdded{}, mesos.TaskAdded{})
	for _, event := range events {
		require.NoError(t, source.Publish(ctx, event))
	}
}

func TestEngine(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	t.Run("With lifecycle errors", func(t *testing.T) {
		source := newSource()
		engine := New(source, WithLogger(log.DiscardLogger))
		assert.Equal(t, Unsubscribed, engine.State())
		require.ErrorIs(t, engine.Stop(ctx), ErrEngineNotStarted)

		require.NoError(t, engine.Start(ctx))
		require.ErrorIs(t, engine.Start(ctx), ErrEngineAlreadyStarted)

		require.NoError(t, engine.Stop(ctx))
		assert.Equal(t, Unsubscribed, engine.State())
		require.ErrorIs(t, engine.Stop(ctx), ErrEngineNotStarted)

		// the source is closed with the engine
		require.Error(t, engine.Start(ctx))
	})
	t.Run("With unknown service", func(t *testing.T) {
		engine := startEngine(t, newSource())
		endpoints := engine.GetService("unknown")
		require.NotNil(t, endpoints)
		assert.Empty(t, endpoints)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With initial load then task termination", func(t *testing.T) {
		source := newSource()
		source.SetAgents(
			&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true},
			&mesos.Agent{ID: "a2", Hostname: "10.0.0.6", Active: false},
		)
		source.SetTasks(webTask("web.1", mesos.TaskRunning))

		engine := startEngine(t, source)
		assert.Equal(t, []cache.Endpoint{{IPAddress: "10.0.0.5", Port: 31000}}, engine.GetService("web"))
		assert.Equal(t, 1, engine.Agents())

		// terminal updates carry no discovery info
		publishAndWait(t, source, mesos.TaskUpdated{Task: &mesos.Task{ID: "web.1", State: mesos.TaskFinished}})
		assert.Empty(t, engine.GetService("web"))

		_, ok := engine.cache.Service("web")
		assert.True(t, ok)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With every terminal state", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		engine := startEngine(t, source)

		states := []mesos.TaskState{
			mesos.TaskKilled, mesos.TaskFailed, mesos.TaskFinished,
			mesos.TaskError, mesos.TaskDropped, mesos.TaskGone,
		}
		for _, state := range states {
			publishAndWait(t, source, mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)})
			require.Len(t, engine.GetService("web"), 1)

			publishAndWait(t, source, mesos.TaskUpdated{Task: &mesos.Task{ID: "web.1", State: state}})
			assert.Empty(t, engine.GetService("web"), state)
		}

		// non terminal states leave the record in place
		publishAndWait(t, source,
			mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)},
			mesos.TaskUpdated{Task: &mesos.Task{ID: "web.1", State: mesos.TaskLost}},
			mesos.TaskUpdated{Task: &mesos.Task{ID: "web.1", State: mesos.TaskKilling}},
		)
		assert.Len(t, engine.GetService("web"), 1)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With idempotent updates", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		engine := startEngine(t, source)

		publishAndWait(t, source,
			mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)},
			mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)},
		)
		assert.Equal(t, []cache.Endpoint{{IPAddress: "10.0.0.5", Port: 31000}}, engine.GetService("web"))
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With unresolvable tasks", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		engine := startEngine(t, source)

		noLabel := webTask("web.1", mesos.TaskRunning)
		noLabel.Labels = nil
		unknownAgent := webTask("web.2", mesos.TaskRunning)
		unknownAgent.AgentID = "a9"
		noDiscovery := webTask("web.3", mesos.TaskRunning)
		noDiscovery.Discovery = nil

		publishAndWait(t, source,
			mesos.TaskAdded{Task: webTask("web.4", mesos.TaskRunning)},
			mesos.TaskUpdated{Task: noLabel},
			mesos.TaskUpdated{Task: unknownAgent},
			mesos.TaskUpdated{Task: noDiscovery},
			mesos.TaskUpdated{Task: nil},
			mesos.TaskUpdated{Task: webTask("web.5", mesos.TaskStaging)},
		)
		assert.Empty(t, engine.GetService("web"))
		_, ok := engine.cache.Service("web")
		assert.False(t, ok)
		assert.Equal(t, Running, engine.State())
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With agent changes", func(t *testing.T) {
		source := newSource()
		engine := startEngine(t, source)

		// unresolvable until the agent is known
		publishAndWait(t, source, mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)})
		assert.Empty(t, engine.GetService("web"))

		publishAndWait(t, source,
			mesos.AgentAdded{Agent: &mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true}},
			mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)},
		)
		assert.Equal(t, []cache.Endpoint{{IPAddress: "10.0.0.5", Port: 31000}}, engine.GetService("web"))

		// agent removal keeps the resolved endpoints
		publishAndWait(t, source,
			mesos.AgentRemoved{AgentID: "a1"},
			mesos.AgentRemoved{AgentID: "a1"},
			mesos.AgentAdded{Agent: nil},
		)
		assert.Equal(t, []cache.Endpoint{{IPAddress: "10.0.0.5", Port: 31000}}, engine.GetService("web"))
		assert.Zero(t, engine.Agents())

		// but new tasks on that agent are not resolved anymore
		publishAndWait(t, source, mesos.TaskUpdated{Task: webTask("web.2", mesos.TaskRunning)})
		assert.Len(t, engine.GetService("web"), 1)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With inactive agent added", func(t *testing.T) {
		source := newSource()
		engine := startEngine(t, source)

		publishAndWait(t, source,
			mesos.AgentAdded{Agent: &mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: false}},
			mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)},
		)
		assert.Zero(t, engine.Agents())
		assert.Empty(t, engine.GetService("web"))
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With reconciliation", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		source.SetTasks(webTask("web.1", mesos.TaskRunning))
		engine := startEngine(t, source, WithReconcileInterval(50*time.Millisecond))
		require.Len(t, engine.GetService("web"), 1)

		// web.2 was missed by the event stream, web.1 vanished from the master
		missed := webTask("web.2", mesos.TaskRunning)
		missed.Discovery.Ports = []mesos.Port{{Number: 31001}}
		source.SetTasks(missed)

		require.Eventually(t, func() bool { return len(engine.GetService("web")) == 2 }, waitFor, tick)
		assert.Equal(t, []cache.Endpoint{
			{IPAddress: "10.0.0.5", Port: 31000},
			{IPAddress: "10.0.0.5", Port: 31001},
		}, engine.GetService("web"))
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With reconciliation result event", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		source.SetTasks(webTask("web.1", mesos.TaskRunning))
		engine := startEngine(t, source)

		publishAndWait(t, source, mesos.Reconciled{Tasks: []*mesos.Task{
			webTask("web.2", mesos.TaskRunning),
			{ID: "web.1", State: mesos.TaskKilled},
		}})
		service, ok := engine.cache.Service("web")
		require.True(t, ok)
		require.Len(t, service.Records, 1)
		assert.Equal(t, "web.2", service.Records[0].TaskID)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With session loss and resubscription", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		engine := startEngine(t, source, WithReconcileInterval(20*time.Millisecond))

		require.NoError(t, source.Publish(ctx, mesos.Unsubscribed{}))
		require.Eventually(t, func() bool { return engine.State() == Unsubscribed }, waitFor, tick)

		require.NoError(t, source.Publish(ctx, mesos.Error{Err: errors.New("connection reset")}))
		source.SetTasks(webTask("web.1", mesos.TaskRunning))
		require.NoError(t, source.Publish(ctx, mesos.Subscribed{}))

		require.Eventually(t, func() bool {
			return engine.State() == Running && len(engine.GetService("web")) == 1
		}, waitFor, tick)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With reconcile job kept while unsubscribed", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		engine := startEngine(t, source, WithReconcileInterval(20*time.Millisecond))
		require.True(t, engine.scheduler.IsScheduled(reconcileJobKey))

		publishAndWait(t, source, mesos.Unsubscribed{})
		require.Equal(t, Unsubscribed, engine.State())
		assert.True(t, engine.scheduler.IsScheduled(reconcileJobKey))

		// ticks fire but are skipped until the session is back
		source.SetTasks(webTask("web.1", mesos.TaskRunning))
		time.Sleep(100 * time.Millisecond)
		assert.Empty(t, engine.GetService("web"))

		require.NoError(t, engine.Stop(ctx))
		assert.False(t, engine.scheduler.IsScheduled(reconcileJobKey))
	})
	t.Run("With failing initial fetches", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		source.SetTasks(webTask("web.1", mesos.TaskRunning))
		source.SetAgentsError(errors.New("agents unavailable"))
		engine := startEngine(t, source, WithReconcileInterval(30*time.Millisecond))
		assert.Empty(t, engine.GetService("web"))

		// the agent shows up later and the next reconciliation heals the cache
		require.NoError(t, source.Publish(ctx, mesos.AgentAdded{Agent: &mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true}}))
		require.Eventually(t, func() bool { return len(engine.GetService("web")) == 1 }, waitFor, tick)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With task moving between services", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
		engine := startEngine(t, source)

		renamed := webTask("web.1", mesos.TaskRunning)
		renamed.Discovery.Name = "api"
		publishAndWait(t, source,
			mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)},
			mesos.TaskUpdated{Task: renamed},
		)
		assert.Empty(t, engine.GetService("web"))
		assert.Len(t, engine.GetService("api"), 1)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With closed source", func(t *testing.T) {
		source := newSource()
		engine := startEngine(t, source)
		require.NoError(t, source.Close())
		require.Eventually(t, func() bool { return engine.State() == Unsubscribed }, waitFor, tick)
		require.NoError(t, engine.Stop(ctx))
	})
	t.Run("With monotonic timestamps", func(t *testing.T) {
		source := newSource()
		source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})

		now := time.UnixMilli(1_000_000)
		clock := make(chan time.Time, 1)
		clock <- now
		engine := startEngine(t, source, WithClock(func() time.Time {
			select {
			case current := <-clock:
				now = current
			default:
			}
			return now
		}))

		publishAndWait(t, source, mesos.TaskUpdated{Task: webTask("web.1", mesos.TaskRunning)})
		clock <- time.UnixMilli(500)
		publishAndWait(t, source, mesos.TaskUpdated{Task: webTask("web.2", mesos.TaskRunning)})

		service, ok := engine.cache.Service("web")
		require.True(t, ok)
		assert.EqualValues(t, 1_000_000, service.LastUpdateStamp)
		assert.EqualValues(t, 1_000_000, engine.cache.LoadTimestamp())
		require.NoError(t, engine.Stop(ctx))
	})
}

func TestEngineMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	source := newSource()
	source.SetAgents(&mesos.Agent{ID: "a1", Hostname: "10.0.0.5", Active: true})
	source.SetTasks(webTask("web.1", mesos.TaskRunning), webTask("web.2", mesos.TaskRunning))
	engine := startEngine(t, source, WithMeterProvider(provider))
	require.Len(t, engine.GetService("web"), 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Gauge[int64]:
				for _, point := range data.DataPoints {
					values[m.Name] += point.Value
				}
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					values[m.Name] += point.Value
				}
			}
		}
	}

	assert.EqualValues(t, 1, values["mesosds.services"])
	assert.EqualValues(t, 2, values["mesosds.endpoints"])
	assert.EqualValues(t, 1, values["mesosds.agents"])
	assert.EqualValues(t, 2, values["mesosds.endpoints.upserted"])
	assert.EqualValues(t, 1, values["mesosds.events.count"])
	require.NoError(t, engine.Stop(ctx))
}
