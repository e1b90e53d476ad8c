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

// Package consul mirrors endpoints into a Consul agent.
package consul

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/consul/api"

	"github.com/tochemey/mesosds/log"
	"github.com/tochemey/mesosds/mirror"
)

// SinkID is the Consul sink identifier
const SinkID = "consul"

// taskIDMeta is the service meta key holding the task id
const taskIDMeta = "mesos_task_id"

// ErrSinkNotOpened is returned when the sink is used before Open
var ErrSinkNotOpened = errors.New("consul: sink is not opened")

// Sink registers endpoints as Consul agent services
type Sink struct {
	config *Config
	logger log.Logger

	mu     sync.RWMutex
	client *api.Client
}

var _ mirror.Sink = (*Sink)(nil)

// NewSink creates an instance of Sink
func NewSink(config *Config, logger log.Logger) *Sink {
	if config == nil {
		config = new(Config)
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Sink{
		config: config,
		logger: logger,
	}
}

// ID implements mirror.Sink.
func (x *Sink) ID() string {
	return SinkID
}

// Open creates the Consul client and checks the agent is reachable.
func (x *Sink) Open(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.config.Sanitize()
	if err := x.config.Validate(); err != nil {
		return fmt.Errorf("consul sink config is invalid: %w", err)
	}

	consulConfig := api.DefaultConfig()
	consulConfig.Address = x.config.Address
	consulConfig.Datacenter = x.config.Datacenter
	consulConfig.Token = x.config.Token

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return fmt.Errorf("failed to create consul client: %w", err)
	}

	if _, err := client.Agent().Self(); err != nil {
		return fmt.Errorf("failed to connect to consul: %w", err)
	}

	x.client = client
	return nil
}

// Register implements mirror.Sink.
func (x *Sink) Register(ctx context.Context, entries []mirror.Entry) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.client == nil {
		return ErrSinkNotOpened
	}

	for _, entry := range entries {
		service := &api.AgentServiceRegistration{
			ID:      entry.TaskID,
			Name:    entry.Service,
			Address: entry.IPAddress,
			Port:    entry.Port,
			Tags:    x.tags(),
			Meta:    map[string]string{taskIDMeta: entry.TaskID},
		}

		ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
		err := x.client.Agent().ServiceRegisterOpts(service, api.ServiceRegisterOpts{}.WithContext(ctx))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to register task=(%s): %w", entry.TaskID, err)
		}
	}
	return nil
}

// Deregister implements mirror.Sink.
func (x *Sink) Deregister(ctx context.Context, entries []mirror.Entry) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.client == nil {
		return ErrSinkNotOpened
	}

	for _, entry := range entries {
		ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
		err := x.client.Agent().ServiceDeregisterOpts(entry.TaskID, (&api.QueryOptions{}).WithContext(ctx))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to deregister task=(%s): %w", entry.TaskID, err)
		}
	}
	return nil
}

// Close releases the client. The services registered by the sink are
// withdrawn by the mirror before Close is called.
func (x *Sink) Close(context.Context) error {
	x.mu.Lock()
	x.client = nil
	x.mu.Unlock()
	return nil
}

func (x *Sink) tags() []string {
	tags := make([]string, 0, len(x.config.Tags)+1)
	tags = append(tags, DefaultTag)
	tags = append(tags, x.config.Tags...)
	return tags
}
