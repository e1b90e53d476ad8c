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

// Package etcd mirrors endpoints into etcd.
//
// Every endpoint is written at <prefix>/<service>/<task id> with its JSON
// encoded address as value. All keys are attached to a single lease kept alive
// for as long as the sink is open, so the keys of a crashed process expire on
// their own.
package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	goset "github.com/deckarep/golang-set/v2"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mirror"
)

// SinkID is the etcd sink identifier
const SinkID = "etcd"

// ErrSinkNotOpened is returned when the sink is used before Open
var ErrSinkNotOpened = errors.New("etcd: sink is not opened")

// backend is the part of the etcd client the sink talks to
type backend struct {
	kv    clientv3.KV
	lease clientv3.Lease
	close func() error
}

type dialer func(ctx context.Context, config *Config) (*backend, error)

// Sink writes endpoints into etcd
type Sink struct {
	config *Config
	logger log.Logger
	dial   dialer

	mu      sync.Mutex
	backend *backend
	leaseID clientv3.LeaseID
	// entries currently written under the lease
	entries goset.Set[mirror.Entry]
	// set when the keep-alive stream ends while the sink is open
	expired         *atomic.Bool
	cancelKeepAlive context.CancelFunc
	wg              sync.WaitGroup
}

var _ mirror.Sink = (*Sink)(nil)

// NewSink creates an instance of Sink
func NewSink(config *Config, logger log.Logger) *Sink {
	return newSink(config, logger, dial)
}

func newSink(config *Config, logger log.Logger, dial dialer) *Sink {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Sink{
		config:  config,
		logger:  logger,
		dial:    dial,
		entries: goset.NewSet[mirror.Entry](),
		expired: atomic.NewBool(false),
	}
}

// ID implements mirror.Sink.
func (x *Sink) ID() string {
	return SinkID
}

// Open implements mirror.Sink.
func (x *Sink) Open(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.config.Sanitize()
	if err := x.config.Validate(); err != nil {
		return fmt.Errorf("etcd sink config is invalid: %w", err)
	}

	backend, err := x.dial(ctx, x.config)
	if err != nil {
		return err
	}

	x.backend = backend
	if err := x.grant(ctx); err != nil {
		_ = backend.close()
		x.backend = nil
		return err
	}
	return nil
}

// Register implements mirror.Sink.
func (x *Sink) Register(ctx context.Context, entries []mirror.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.backend == nil {
		return ErrSinkNotOpened
	}

	if err := x.restore(ctx); err != nil {
		return err
	}

	for _, entry := range entries {
		if err := x.put(ctx, entry); err != nil {
			return err
		}
		x.entries.Add(entry)
	}
	return nil
}

// Deregister implements mirror.Sink.
func (x *Sink) Deregister(ctx context.Context, entries []mirror.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.backend == nil {
		return ErrSinkNotOpened
	}

	for _, entry := range entries {
		ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
		_, err := x.backend.kv.Delete(ctx, x.key(entry))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to delete key=(%s): %w", x.key(entry), err)
		}
		x.entries.Remove(entry)
	}
	return nil
}

// Close implements mirror.Sink.
func (x *Sink) Close(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.backend == nil {
		return nil
	}

	x.stopKeepAlive()

	var err error
	if x.leaseID != 0 {
		ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
		// the keys expire with the lease should the revoke fail
		if _, rerr := x.backend.lease.Revoke(ctx, x.leaseID); rerr != nil {
			x.logger.Warnf("failed to revoke etcd lease=(%d): %v", x.leaseID, rerr)
		}
		cancel()
		x.leaseID = 0
	}

	if cerr := x.backend.close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close etcd client: %w", cerr))
	}

	x.backend = nil
	x.entries.Clear()
	return err
}

// grant creates a fresh lease and keeps it alive
func (x *Sink) grant(ctx context.Context) error {
	grantCtx, cancel := context.WithTimeout(ctx, x.config.Timeout)
	defer cancel()

	lease, err := x.backend.lease.Grant(grantCtx, x.config.TTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	keepAliveCtx, keepAliveCancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := x.backend.lease.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		keepAliveCancel()
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}

	x.leaseID = lease.ID
	x.cancelKeepAlive = keepAliveCancel
	x.expired.Store(false)

	x.wg.Add(1)
	go x.keepAlive(keepAliveCtx, lease.ID, ch)
	return nil
}

func (x *Sink) keepAlive(ctx context.Context, leaseID clientv3.LeaseID, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	defer x.wg.Done()
	for range ch {
		// drain the responses so the client never blocks
	}

	if ctx.Err() == nil {
		x.logger.Warnf("etcd lease=(%d) keep-alive ended, endpoints will be rewritten at the next registration", leaseID)
		x.expired.Store(true)
	}
}

// restore writes every known entry again under a new lease once the previous one is lost
func (x *Sink) restore(ctx context.Context) error {
	if !x.expired.Load() {
		return nil
	}

	x.stopKeepAlive()
	if err := x.grant(ctx); err != nil {
		return err
	}

	for _, entry := range x.entries.ToSlice() {
		if err := x.put(ctx, entry); err != nil {
			return err
		}
	}

	x.logger.Infof("restored %d endpoints in etcd under lease=(%d)", x.entries.Cardinality(), x.leaseID)
	return nil
}

func (x *Sink) stopKeepAlive() {
	if x.cancelKeepAlive != nil {
		x.cancelKeepAlive()
		x.cancelKeepAlive = nil
	}
	x.wg.Wait()
}

func (x *Sink) put(ctx context.Context, entry mirror.Entry) error {
	value, err := json.Marshal(entry.Endpoint())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
	defer cancel()

	if _, err := x.backend.kv.Put(ctx, x.key(entry), string(value), clientv3.WithLease(x.leaseID)); err != nil {
		return fmt.Errorf("failed to put key=(%s): %w", x.key(entry), err)
	}
	return nil
}

func (x *Sink) key(entry mirror.Entry) string {
	return path.Join(x.config.Prefix, entry.Service, entry.TaskID)
}

func dial(ctx context.Context, config *Config) (*backend, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		TLS:         config.TLS,
		Username:    config.Username,
		Password:    config.Password,
		Context:     context.WithoutCancel(ctx),
	})
	if err != nil {
		return nil, err
	}

	statusCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	if _, err := client.Status(statusCtx, config.Endpoints[0]); err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close etcd client: %w", cerr))
		}
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &backend{
		kv:    client.KV,
		lease: client.Lease,
		close: client.Close,
	}, nil
}
