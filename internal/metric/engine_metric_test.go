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

package metric

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewEngineMetric(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	instruments, err := NewEngineMetric(meter)
	require.NoError(t, err)
	require.NotNil(t, instruments)

	ctx := context.Background()
	instruments.RecordEvent(ctx, "task_updated")
	instruments.RecordUpsert(ctx)
	instruments.RecordRemoval(ctx)
	instruments.RecordUnresolved(ctx, "unknown_agent")
	instruments.RecordReconciliation(ctx)

	registration, err := instruments.Observe(func() Gauges { return Gauges{} })
	require.NoError(t, err)
	require.NoError(t, registration.Unregister())
}

func TestNewEngineMetricErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	baseMeter := noop.NewMeterProvider().Meter("test")

	testCases := []string{
		"mesosds.events.count",
		"mesosds.endpoints.upserted",
		"mesosds.endpoints.removed",
		"mesosds.tasks.unresolved",
		"mesosds.reconciliations.count",
		"mesosds.services",
		"mesosds.endpoints",
		"mesosds.agents",
	}

	for _, failKey := range testCases {
		t.Run(failKey, func(t *testing.T) {
			t.Parallel()
			meter := instrumentFailingMeter{
				Meter:    baseMeter,
				failures: map[string]error{failKey: errBoom},
			}

			instruments, err := NewEngineMetric(meter)
			require.ErrorIs(t, err, errBoom)
			require.Nil(t, instruments)
		})
	}
}

func TestEngineMetricRecording(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	instruments, err := NewEngineMetric(NewProvider(provider).Meter())
	require.NoError(t, err)

	instruments.RecordEvent(ctx, "task_updated")
	instruments.RecordEvent(ctx, "task_updated")
	instruments.RecordEvent(ctx, "agent_added")
	instruments.RecordUnresolved(ctx, "unknown_agent")
	instruments.RecordUpsert(ctx)

	registration, err := instruments.Observe(func() Gauges {
		return Gauges{Services: 2, Endpoints: 3, Agents: 1}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registration.Unregister() })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	events := findMetric(t, rm, "mesosds.events.count")
	sum, ok := events.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := make(map[string]int64)
	for _, point := range sum.DataPoints {
		value, _ := point.Attributes.Value(EventTypeKey)
		counts[value.AsString()] = point.Value
	}
	assert.Equal(t, map[string]int64{"task_updated": 2, "agent_added": 1}, counts)

	unresolved := findMetric(t, rm, "mesosds.tasks.unresolved")
	unresolvedSum, ok := unresolved.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, unresolvedSum.DataPoints, 1)
	reason, ok := unresolvedSum.DataPoints[0].Attributes.Value(ReasonKey)
	require.True(t, ok)
	assert.Equal(t, "unknown_agent", reason.AsString())

	endpoints := findMetric(t, rm, "mesosds.endpoints")
	gauge, ok := endpoints.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.EqualValues(t, 3, gauge.DataPoints[0].Value)
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	require.FailNowf(t, "metric not found", "%s", name)
	return metricdata.Metrics{}
}

type instrumentFailingMeter struct {
	metric.Meter
	failures map[string]error
}

func (m instrumentFailingMeter) Int64Counter(name string, options ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if err, ok := m.failures[name]; ok {
		return nil, err
	}
	return m.Meter.Int64Counter(name, options...)
}

func (m instrumentFailingMeter) Int64ObservableGauge(name string, options ...metric.Int64ObservableGaugeOption) (metric.Int64ObservableGauge, error) {
	if err, ok := m.failures[name]; ok {
		return nil, err
	}
	return m.Meter.Int64ObservableGauge(name, options...)
}
