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

package mesos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrSourceClosed is returned when a closed source is used
	ErrSourceClosed = errors.New("mesos: source is closed")
	// ErrAlreadySubscribed is returned when Subscribe is called twice
	ErrAlreadySubscribed = errors.New("mesos: source already subscribed")
	// ErrNotSubscribed is returned when a source is used before Subscribe
	ErrNotSubscribed = errors.New("mesos: source not subscribed")
)

// Source is the session with the cluster master. It owns connection
// establishment, reconnection and event decoding; consumers only read events.
type Source interface {
	// ID returns the source name
	ID() string
	// Subscribe starts the session and returns the channel on which events are
	// emitted. The channel is closed when the source is closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	// Agents fetches the full agent list
	Agents(ctx context.Context) ([]*Agent, error)
	// Tasks fetches the full task list
	Tasks(ctx context.Context) ([]*Task, error)
	// Reconcile asks for the full state. The answer arrives later as a Reconciled event.
	Reconcile(ctx context.Context) error
	// Close ends the session and releases resources
	Close() error
}

const (
	DefaultMasterHost              = "127.0.0.1"
	DefaultMasterPort              = 5050
	DefaultMasterProtocol          = "http"
	DefaultMasterAPIURI            = "/api/v1"
	DefaultMasterConnectionTimeout = 5 * time.Second
)

// MasterConfig holds the Mesos master connection settings. They are handed to
// the Source untouched.
type MasterConfig struct {
	Host              string        `json:"host" yaml:"host"`
	Port              int           `json:"port" yaml:"port"`
	Protocol          string        `json:"protocol" yaml:"protocol"`
	APIURI            string        `json:"api_uri" yaml:"api_uri"`
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"-"`
}

// Sanitize fills the unset fields with the defaults
func (c *MasterConfig) Sanitize() {
	if c.Host == "" {
		c.Host = DefaultMasterHost
	}
	if c.Port <= 0 {
		c.Port = DefaultMasterPort
	}
	if c.Protocol == "" {
		c.Protocol = DefaultMasterProtocol
	}
	if c.APIURI == "" {
		c.APIURI = DefaultMasterAPIURI
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultMasterConnectionTimeout
	}
}

// URL returns the operator API endpoint, e.g. http://127.0.0.1:5050/api/v1
func (c MasterConfig) URL() string {
	return fmt.Sprintf("%s://%s%s", c.Protocol, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.APIURI)
}
