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

// Package nats provides a mesos.Source fed by an operator API bridge over NATS.
//
// The bridge holds the actual session with the Mesos master. It exchanges JSON
// messages with this source on the subjects below, P being the configured prefix:
//
//	P.subscribe  request/reply, asks the bridge to open the master session
//	P.events     publish, one Envelope per lifecycle event
//	P.agents     request/reply, full agent list
//	P.tasks      request/reply, full task list
//	P.reconcile  publish with a reply inbox, full task list delivered later
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mesos"
)

// Source is a mesos.Source backed by a NATS bridge
type Source struct {
	config     *Config
	logger     log.Logger
	bufferSize int
	clientName string

	mu             sync.Mutex
	connection     *nats.Conn
	subscriptions  []*nats.Subscription
	reconcileInbox string

	eventsMu   sync.RWMutex
	events     chan mesos.Event
	done       chan struct{}
	subscribed *atomic.Bool
	closed     *atomic.Bool
}

var _ mesos.Source = (*Source)(nil)

// NewSource creates an instance of Source
func NewSource(config *Config, opts ...Option) *Source {
	source := &Source{
		config:     config,
		logger:     log.DefaultLogger,
		bufferSize: defaultBufferSize,
		clientName: "mesosds-" + uuid.NewString(),
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
	return "nats"
}

// Subscribe connects to the NATS server, listens to the bridge events and asks
// the bridge to open the master session. Subscribed is emitted once the bridge
// acknowledges and again after every reconnection.
func (s *Source) Subscribe(ctx context.Context) (<-chan mesos.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, mesos.ErrSourceClosed
	}

	if s.subscribed.Load() {
		return nil, mesos.ErrAlreadySubscribed
	}

	s.config.sanitize()
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	s.eventsMu.Lock()
	s.events = make(chan mesos.Event, s.bufferSize)
	s.eventsMu.Unlock()

	connection, err := s.connect()
	if err != nil {
		return nil, fmt.Errorf("nats: failed to connect to %s: %w", s.config.Server, err)
	}

	eventsSubscription, err := connection.Subscribe(s.config.subject("events"), s.handleEvent)
	if err != nil {
		connection.Close()
		return nil, err
	}

	s.reconcileInbox = nats.NewInbox()
	reconcileSubscription, err := connection.Subscribe(s.reconcileInbox, s.handleReconciled)
	if err != nil {
		connection.Close()
		return nil, err
	}

	s.connection = connection
	s.subscriptions = append(s.subscriptions, eventsSubscription, reconcileSubscription)

	if err := s.openSession(ctx, connection); err != nil {
		s.connection = nil
		s.subscriptions = nil
		connection.Close()
		return nil, err
	}

	s.subscribed.Store(true)
	s.emit(mesos.Subscribed{})
	s.logger.Infof("subscribed to bridge on subject=(%s) for master=(%s)", s.config.Subject, s.config.Master.URL())
	return s.events, nil
}

// Agents fetches the full agent list from the bridge
func (s *Source) Agents(ctx context.Context) ([]*mesos.Agent, error) {
	var reply AgentsReply
	if err := s.request(ctx, "agents", &reply); err != nil {
		return nil, err
	}

	if reply.Error != "" {
		return nil, fmt.Errorf("nats: bridge failed to list agents: %s", reply.Error)
	}
	return reply.Agents, nil
}

// Tasks fetches the full task list from the bridge
func (s *Source) Tasks(ctx context.Context) ([]*mesos.Task, error) {
	var reply TasksReply
	if err := s.request(ctx, "tasks", &reply); err != nil {
		return nil, err
	}

	if reply.Error != "" {
		return nil, fmt.Errorf("nats: bridge failed to list tasks: %s", reply.Error)
	}
	return reply.Tasks, nil
}

// Reconcile asks the bridge for the full task list. The answer is emitted as a
// Reconciled event.
func (s *Source) Reconcile(context.Context) error {
	connection, err := s.conn()
	if err != nil {
		return err
	}
	return connection.PublishRequest(s.config.subject("reconcile"), s.reconcileInbox, nil)
}

// Close releases the connection and closes the events channel
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.done)

	s.mu.Lock()
	var err error
	for _, subscription := range s.subscriptions {
		if subscription != nil && subscription.IsValid() {
			if e := subscription.Unsubscribe(); e != nil && !errors.Is(e, nats.ErrConnectionClosed) {
				err = e
			}
		}
	}

	if s.connection != nil {
		s.connection.Close()
		s.connection = nil
	}
	s.subscriptions = nil
	s.mu.Unlock()

	s.eventsMu.Lock()
	if s.events != nil {
		close(s.events)
	}
	s.eventsMu.Unlock()
	return err
}

func (s *Source) connect() (*nats.Conn, error) {
	opts := nats.GetDefaultOptions()
	opts.Url = s.config.Server
	opts.Name = s.clientName
	opts.ReconnectWait = s.config.ReconnectWait
	opts.MaxReconnect = -1
	opts.DisconnectedErrCB = s.handleDisconnect
	opts.ReconnectedCB = s.handleReconnect

	var (
		connection *nats.Conn
		err        error
	)

	// try a few times with an exponential backoff capped by the reconnect wait
	retrier := retry.NewRetrier(s.config.MaxRetries, 100*time.Millisecond, opts.ReconnectWait)
	err = retrier.Run(func() error {
		connection, err = opts.Connect()
		return err
	})
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (s *Source) openSession(ctx context.Context, connection *nats.Conn) error {
	payload, err := json.Marshal(&SessionRequest{Client: s.clientName, Master: s.config.Master})
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := connection.RequestWithContext(ctx, s.config.subject("subscribe"), payload)
	if err != nil {
		return fmt.Errorf("nats: session request failed: %w", err)
	}

	var reply SessionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("nats: malformed session reply: %w", err)
	}

	if reply.Error != "" {
		return fmt.Errorf("nats: bridge refused the session: %s", reply.Error)
	}
	return nil
}

func (s *Source) request(ctx context.Context, name string, reply any) error {
	connection, err := s.conn()
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := connection.RequestWithContext(ctx, s.config.subject(name), nil)
	if err != nil {
		return fmt.Errorf("nats: %s request failed: %w", name, err)
	}

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("nats: malformed %s reply: %w", name, err)
	}
	return nil
}

func (s *Source) conn() (*nats.Conn, error) {
	if s.closed.Load() {
		return nil, mesos.ErrSourceClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connection == nil {
		return nil, mesos.ErrNotSubscribed
	}
	return s.connection, nil
}

func (s *Source) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}

func (s *Source) handleEvent(msg *nats.Msg) {
	event, err := decodeEnvelope(msg.Data)
	if err != nil {
		s.logger.Warnf("dropping bridge message: %v", err)
		s.emit(mesos.Error{Err: err})
		return
	}
	s.emit(event)
}

func (s *Source) handleReconciled(msg *nats.Msg) {
	var reply TasksReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		s.emit(mesos.Error{Err: fmt.Errorf("nats: malformed reconcile reply: %w", err)})
		return
	}

	if reply.Error != "" {
		s.emit(mesos.Error{Err: fmt.Errorf("nats: bridge failed to reconcile: %s", reply.Error)})
		return
	}
	s.emit(mesos.Reconciled{Tasks: reply.Tasks})
}

func (s *Source) handleDisconnect(_ *nats.Conn, err error) {
	if s.closed.Load() {
		return
	}

	if err != nil {
		s.logger.Warnf("disconnected from %s: %v", s.config.Server, err)
		s.emit(mesos.Error{Err: err})
	}
	s.emit(mesos.Unsubscribed{})
}

func (s *Source) handleReconnect(connection *nats.Conn) {
	if s.closed.Load() {
		return
	}

	s.logger.Infof("reconnected to %s", connection.ConnectedUrl())

	// the bridge may have lost the session while we were away
	if err := s.openSession(context.Background(), connection); err != nil {
		s.emit(mesos.Error{Err: err})
		return
	}
	s.emit(mesos.Subscribed{})
}

// emit blocks until the event is buffered or the source is closed
func (s *Source) emit(event mesos.Event) {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()

	if s.closed.Load() || s.events == nil {
		return
	}

	select {
	case s.events <- event:
	case <-s.done:
	}
}
