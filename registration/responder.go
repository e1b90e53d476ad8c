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

// Package registration answers service endpoint queries over NATS request/reply.
//
// A request on P.registration.<service> is answered with the JSON body
//
//	{"hosts":[{"ip_address":"10.0.0.5","port":31000}]}
//
// An unknown service is answered with an empty host list, never an error.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	"github.com/tochemey/mesosds/cache"
	"github.com/tochemey/mesosds/internal/validation"
	"github.com/tochemey/mesosds/log"
)

const (
	defaultQueueGroup = "mesosds"
	maxRetries        = 5
	reconnectWait     = 2 * time.Second
)

var (
	// ErrResponderStarted is returned when Start is called twice
	ErrResponderStarted = errors.New("registration: responder already started")
	// ErrResponderNotStarted is returned when Stop is called before Start
	ErrResponderNotStarted = errors.New("registration: responder not started")
)

// Querier returns the current endpoints of a service
type Querier interface {
	GetService(serviceName string) []cache.Endpoint
}

// Response is the reply body
type Response struct {
	Hosts []cache.Endpoint `json:"hosts"`
}

// Config represents the responder configuration
type Config struct {
	// Server defines the nats server in the format nats://host:port
	Server string
	// Subject is the subject prefix. Requests are served on <Subject>.registration.<service>
	Subject string
}

// Validate checks whether the given configuration is valid
func (x Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Server", x.Server)).
		AddValidator(validation.NewSubjectValidator(x.Subject)).
		Validate()
}

// Responder serves Querier results over NATS
type Responder struct {
	config     *Config
	querier    Querier
	logger     log.Logger
	queueGroup string

	mu           sync.Mutex
	started      *atomic.Bool
	connection   *nats.Conn
	subscription *nats.Subscription
}

// NewResponder creates an instance of Responder
func NewResponder(config *Config, querier Querier, opts ...Option) *Responder {
	responder := &Responder{
		config:     config,
		querier:    querier,
		logger:     log.DefaultLogger,
		queueGroup: defaultQueueGroup,
		started:    atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(responder)
	}
	return responder
}

// Start connects to the NATS server and starts answering requests
func (r *Responder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started.Load() {
		return ErrResponderStarted
	}

	if err := r.config.Validate(); err != nil {
		return err
	}

	opts := nats.GetDefaultOptions()
	opts.Url = r.config.Server
	opts.ReconnectWait = reconnectWait
	opts.MaxReconnect = -1

	var (
		connection *nats.Conn
		err        error
	)

	retrier := retry.NewRetrier(maxRetries, 100*time.Millisecond, opts.ReconnectWait)
	if err = retrier.Run(func() error {
		connection, err = opts.Connect()
		return err
	}); err != nil {
		return fmt.Errorf("registration: failed to connect to %s: %w", r.config.Server, err)
	}

	subscription, err := connection.QueueSubscribe(r.subjectPrefix()+">", r.queueGroup, r.handle)
	if err != nil {
		connection.Close()
		return err
	}

	r.connection = connection
	r.subscription = subscription
	r.started.Store(true)
	r.logger.Infof("registration responder listening on subject=(%s>)", r.subjectPrefix())
	return nil
}

// Stop drains the pending requests and closes the connection
func (r *Responder) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started.Load() {
		return ErrResponderNotStarted
	}

	var err error
	if r.subscription != nil && r.subscription.IsValid() {
		err = r.subscription.Unsubscribe()
	}

	if r.connection != nil {
		r.connection.Close()
	}

	r.connection = nil
	r.subscription = nil
	r.started.Store(false)
	return err
}

func (r *Responder) subjectPrefix() string {
	return r.config.Subject + ".registration."
}

func (r *Responder) handle(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}

	serviceName := strings.TrimPrefix(msg.Subject, r.subjectPrefix())
	hosts := r.querier.GetService(serviceName)
	if hosts == nil {
		hosts = []cache.Endpoint{}
	}

	payload, err := json.Marshal(&Response{Hosts: hosts})
	if err != nil {
		r.logger.Errorf("failed to encode the endpoints of service=(%s): %v", serviceName, err)
		return
	}

	if err := msg.Respond(payload); err != nil {
		r.logger.Warnf("failed to answer the endpoints of service=(%s): %v", serviceName, err)
	}
}
