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

package mirror

import (
	"context"

	"github.com/tochemey/mesosds/cache"
)

// Entry is one published endpoint as seen by an external registry
type Entry struct {
	Service   string
	TaskID    string
	IPAddress string
	Port      int
}

// Endpoint returns the consumer view of the entry
func (e Entry) Endpoint() cache.Endpoint {
	return cache.Endpoint{IPAddress: e.IPAddress, Port: e.Port}
}

// Sink is an external registry the cache is mirrored into.
// Register and Deregister must be idempotent: a failed sync is retried whole.
type Sink interface {
	// ID returns the sink name
	ID() string
	// Open connects to the registry
	Open(ctx context.Context) error
	// Register publishes the given entries
	Register(ctx context.Context, entries []Entry) error
	// Deregister withdraws the given entries
	Deregister(ctx context.Context, entries []Entry) error
	// Close releases the registry connection. It is also called on a sink whose Open failed.
	Close(ctx context.Context) error
}
