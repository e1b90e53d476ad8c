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
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/mesosds/log"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(engine *Engine)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(engine *Engine)

// Apply applies the Engine's option
func (f OptionFunc) Apply(engine *Engine) {
	f(engine)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(engine *Engine) {
		engine.logger = logger
	})
}

// WithReconcileInterval sets how often a full state reconciliation is requested.
// Non-positive values are ignored.
func WithReconcileInterval(interval time.Duration) Option {
	return OptionFunc(func(engine *Engine) {
		if interval > 0 {
			engine.reconcileInterval = interval
		}
	})
}

// WithShutdownTimeout sets how long Stop waits for in-flight work
func WithShutdownTimeout(timeout time.Duration) Option {
	return OptionFunc(func(engine *Engine) {
		if timeout > 0 {
			engine.shutdownTimeout = timeout
		}
	})
}

// WithClock sets the function used to stamp cache updates
func WithClock(clock func() time.Time) Option {
	return OptionFunc(func(engine *Engine) {
		if clock != nil {
			engine.clock = clock
		}
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider.
// The global provider is used when not set.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(engine *Engine) {
		engine.meterProvider = provider
	})
}
