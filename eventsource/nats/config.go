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

package nats

import (
	"time"

	"github.com/tochemey/mesosds/internal/validation"
	"github.com/tochemey/mesosds/mesos"
)

const (
	// DefaultSubject is the default subject prefix shared with the bridge
	DefaultSubject        = "mesos"
	defaultRequestTimeout = 5 * time.Second
	defaultReconnectWait  = 2 * time.Second
	defaultMaxRetries     = 5
	defaultBufferSize     = 256
)

// Config represents the NATS bridge source configuration
type Config struct {
	// Server defines the nats server in the format nats://host:port
	Server string
	// Subject is the subject prefix under which the bridge listens and publishes
	Subject string
	// Master is handed to the bridge when the session is requested
	Master mesos.MasterConfig
	// RequestTimeout bounds the full list fetches when the caller context has no deadline
	RequestTimeout time.Duration
	// ReconnectWait is the delay between two reconnection attempts
	ReconnectWait time.Duration
	// MaxRetries is the number of initial connection attempts
	MaxRetries int
}

// Validate checks whether the given configuration is valid
func (x Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Server", x.Server)).
		AddValidator(validation.NewSubjectValidator(x.Subject)).
		Validate()
}

func (x *Config) sanitize() {
	if x.Subject == "" {
		x.Subject = DefaultSubject
	}
	if x.RequestTimeout <= 0 {
		x.RequestTimeout = defaultRequestTimeout
	}
	if x.ReconnectWait <= 0 {
		x.ReconnectWait = defaultReconnectWait
	}
	if x.MaxRetries <= 0 {
		x.MaxRetries = defaultMaxRetries
	}
	x.Master.Sanitize()
}

func (x Config) subject(name string) string {
	return x.Subject + "." + name
}
