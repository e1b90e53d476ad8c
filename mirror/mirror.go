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

// Package mirror copies the service cache into external registries.
//
// On every sync the current cache snapshot is compared with what each sink
// last accepted: entries that appeared are registered and entries that
// vanished are deregistered. Sinks are synced concurrently and a failing sink
// does not hold back the others; it is retried in full at the next sync.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/mesosds/cache"
	"github.com/tochemey/mesosds/internal/scheduler"
	"github.com/tochemey/mesosds/log"
)

const (
	// DefaultSyncInterval is the default period between two syncs
	DefaultSyncInterval = 30 * time.Second
	syncJobKey          = "mesosds.mirror"
	stopTimeout         = 5 * time.Second
)

var (
	// ErrMirrorStarted is returned when Start is called twice
	ErrMirrorStarted = errors.New("mirror: already started")
	// ErrMirrorNotStarted is returned when the mirror is used before Start
	ErrMirrorNotStarted = errors.New("mirror: not started")
)

// Snapshotter returns the current content of the service cache
type Snapshotter interface {
	Snapshot() []*cache.Service
}

// Mirror periodically copies a Snapshotter into a set of sinks
type Mirror struct {
	snapshotter  Snapshotter
	sinks        []Sink
	syncInterval time.Duration
	logger       log.Logger
	scheduler    *scheduler.Scheduler

	// serializes syncs
	mu        sync.Mutex
	started   *atomic.Bool
	published map[string]goset.Set[Entry]
}

// New creates an instance of Mirror
func New(snapshotter Snapshotter, opts ...Option) *Mirror {
	mirror := &Mirror{
		snapshotter:  snapshotter,
		syncInterval: DefaultSyncInterval,
		logger:       log.DefaultLogger,
		started:      atomic.NewBool(false),
		published:    make(map[string]goset.Set[Entry]),
	}

	for _, opt := range opts {
		opt.Apply(mirror)
	}

	mirror.scheduler = scheduler.New(mirror.logger, stopTimeout)
	return mirror
}

// Start opens every sink then schedules the periodic sync
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started.Load() {
		return ErrMirrorStarted
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, sink := range m.sinks {
		eg.Go(func() error {
			if err := sink.Open(egCtx); err != nil {
				return fmt.Errorf("mirror: failed to open sink=(%s): %w", sink.ID(), err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// release the sinks that did open
		for _, sink := range m.sinks {
			_ = sink.Close(ctx)
		}
		return err
	}

	for _, sink := range m.sinks {
		m.published[sink.ID()] = goset.NewSet[Entry]()
	}

	m.scheduler.Start(context.WithoutCancel(ctx))
	if err := m.scheduler.Every(syncJobKey, m.syncInterval, m.sync); err != nil {
		m.scheduler.Stop(ctx)
		return fmt.Errorf("mirror: failed to schedule sync: %w", err)
	}

	m.started.Store(true)
	m.logger.Infof("mirroring into %d sinks every %s", len(m.sinks), m.syncInterval)
	return nil
}

// Sync mirrors the current snapshot right away
func (m *Mirror) Sync(ctx context.Context) error {
	if !m.started.Load() {
		return ErrMirrorNotStarted
	}
	return m.sync(ctx)
}

// Stop cancels the periodic sync, withdraws every published entry and closes the sinks
func (m *Mirror) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return ErrMirrorNotStarted
	}

	m.scheduler.Stop(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, sink := range m.sinks {
		if published := m.published[sink.ID()]; published.Cardinality() > 0 {
			err = multierr.Append(err, sink.Deregister(ctx, published.ToSlice()))
		}
		err = multierr.Append(err, sink.Close(ctx))
	}

	m.published = make(map[string]goset.Set[Entry])
	m.started.Store(false)
	return err
}

func (m *Mirror) sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// the mirror may have been stopped while this run was waiting
	if !m.started.Load() {
		return nil
	}

	desired := goset.NewSet[Entry]()
	for _, service := range m.snapshotter.Snapshot() {
		for _, record := range service.Records {
			desired.Add(Entry{
				Service:   service.Name,
				TaskID:    record.TaskID,
				IPAddress: record.IPAddress,
				Port:      record.Port,
			})
		}
	}

	// each sink writes its own slot so the map is only read concurrently
	results := make([]goset.Set[Entry], len(m.sinks))
	var eg errgroup.Group
	for i, sink := range m.sinks {
		published := m.published[sink.ID()]
		eg.Go(func() error {
			stale := published.Difference(desired).ToSlice()
			fresh := desired.Difference(published).ToSlice()

			if len(stale) > 0 {
				if err := sink.Deregister(ctx, stale); err != nil {
					return fmt.Errorf("mirror: sink=(%s) failed to deregister: %w", sink.ID(), err)
				}
			}

			if len(fresh) > 0 {
				if err := sink.Register(ctx, fresh); err != nil {
					return fmt.Errorf("mirror: sink=(%s) failed to register: %w", sink.ID(), err)
				}
			}

			results[i] = desired.Clone()
			if len(stale)+len(fresh) > 0 {
				m.logger.Debugf("sink=(%s) synced: %d registered, %d deregistered", sink.ID(), len(fresh), len(stale))
			}
			return nil
		})
	}

	err := eg.Wait()
	for i, sink := range m.sinks {
		if results[i] != nil {
			m.published[sink.ID()] = results[i]
		}
	}

	if err != nil {
		m.logger.Warnf("mirror sync failed: %v", err)
	}
	return err
}
