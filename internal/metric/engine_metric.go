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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// EventTypeKey is the attribute carrying the lifecycle event type
	EventTypeKey = attribute.Key("event.type")
	// ReasonKey is the attribute carrying why a task could not be resolved
	ReasonKey = attribute.Key("reason")
)

// Gauges is a point-in-time reading of the engine state
type Gauges struct {
	Services  int64
	Endpoints int64
	Agents    int64
}

// EngineMetric groups the instruments describing the reconciliation engine.
//
// Instruments:
//   - mesosds.events.count           (Int64Counter, attribute event.type)
//   - mesosds.endpoints.upserted     (Int64Counter)
//   - mesosds.endpoints.removed      (Int64Counter)
//   - mesosds.tasks.unresolved       (Int64Counter, attribute reason)
//   - mesosds.reconciliations.count  (Int64Counter)
//   - mesosds.services               (Int64ObservableGauge)
//   - mesosds.endpoints              (Int64ObservableGauge)
//   - mesosds.agents                 (Int64ObservableGauge)
type EngineMetric struct {
	meter metric.Meter

	eventsCount          metric.Int64Counter
	upsertsCount         metric.Int64Counter
	removalsCount        metric.Int64Counter
	unresolvedCount      metric.Int64Counter
	reconciliationsCount metric.Int64Counter

	servicesGauge  metric.Int64ObservableGauge
	endpointsGauge metric.Int64ObservableGauge
	agentsGauge    metric.Int64ObservableGauge
}

// NewEngineMetric creates the engine instruments using the provided Meter.
// It returns an error if any instrument cannot be created.
func NewEngineMetric(meter metric.Meter) (*EngineMetric, error) {
	instruments := EngineMetric{meter: meter}
	var err error

	if instruments.eventsCount, err = meter.Int64Counter(
		"mesosds.events.count",
		metric.WithDescription("Total number of lifecycle events processed"),
	); err != nil {
		return nil, err
	}

	if instruments.upsertsCount, err = meter.Int64Counter(
		"mesosds.endpoints.upserted",
		metric.WithDescription("Total number of endpoint records written to the cache"),
	); err != nil {
		return nil, err
	}

	if instruments.removalsCount, err = meter.Int64Counter(
		"mesosds.endpoints.removed",
		metric.WithDescription("Total number of endpoint records removed from the cache"),
	); err != nil {
		return nil, err
	}

	if instruments.unresolvedCount, err = meter.Int64Counter(
		"mesosds.tasks.unresolved",
		metric.WithDescription("Total number of running tasks that could not be resolved"),
	); err != nil {
		return nil, err
	}

	if instruments.reconciliationsCount, err = meter.Int64Counter(
		"mesosds.reconciliations.count",
		metric.WithDescription("Total number of full state reconciliations"),
	); err != nil {
		return nil, err
	}

	if instruments.servicesGauge, err = meter.Int64ObservableGauge(
		"mesosds.services",
		metric.WithDescription("Number of known services"),
	); err != nil {
		return nil, err
	}

	if instruments.endpointsGauge, err = meter.Int64ObservableGauge(
		"mesosds.endpoints",
		metric.WithDescription("Number of published endpoints"),
	); err != nil {
		return nil, err
	}

	if instruments.agentsGauge, err = meter.Int64ObservableGauge(
		"mesosds.agents",
		metric.WithDescription("Number of known agents"),
	); err != nil {
		return nil, err
	}

	return &instruments, nil
}

// RecordEvent counts one processed lifecycle event
func (x *EngineMetric) RecordEvent(ctx context.Context, eventType string) {
	x.eventsCount.Add(ctx, 1, metric.WithAttributes(EventTypeKey.String(eventType)))
}

// RecordUpsert counts one endpoint record written
func (x *EngineMetric) RecordUpsert(ctx context.Context) {
	x.upsertsCount.Add(ctx, 1)
}

// RecordRemoval counts one endpoint record removed
func (x *EngineMetric) RecordRemoval(ctx context.Context) {
	x.removalsCount.Add(ctx, 1)
}

// RecordUnresolved counts one running task left out of the cache
func (x *EngineMetric) RecordUnresolved(ctx context.Context, reason string) {
	x.unresolvedCount.Add(ctx, 1, metric.WithAttributes(ReasonKey.String(reason)))
}

// RecordReconciliation counts one full state pass
func (x *EngineMetric) RecordReconciliation(ctx context.Context) {
	x.reconciliationsCount.Add(ctx, 1)
}

// Observe registers a callback that reads the gauges on every collection.
// The returned registration must be unregistered on shutdown.
func (x *EngineMetric) Observe(read func() Gauges) (metric.Registration, error) {
	return x.meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		gauges := read()
		observer.ObserveInt64(x.servicesGauge, gauges.Services)
		observer.ObserveInt64(x.endpointsGauge, gauges.Endpoints)
		observer.ObserveInt64(x.agentsGauge, gauges.Agents)
		return nil
	}, x.servicesGauge, x.endpointsGauge, x.agentsGauge)
}
