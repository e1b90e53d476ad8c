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

package consul

import (
	"time"

	"github.com/tochemey/mesosds/internal/validation"
)

const (
	// DefaultAddress is the default Consul agent address
	DefaultAddress = "127.0.0.1:8500"
	defaultTimeout = 10 * time.Second
	// DefaultTag is always attached to the registered services
	DefaultTag = "mesosds"
)

// Config defines the configuration options of the Consul sink.
//
// Every mirrored endpoint is registered as one agent service whose ID is the
// task id and whose name is the service name.
type Config struct {
	// Address is the address of the Consul agent to connect to.
	// Default: "127.0.0.1:8500"
	Address string
	// Datacenter specifies the Consul datacenter to use.
	// If empty, the agent's default datacenter is used.
	Datacenter string
	// Token is the Consul ACL token used for authenticated requests.
	Token string
	// Tags are extra tags attached to every registered service
	Tags []string
	// Timeout specifies the maximum duration for Consul requests.
	// Default: 10s
	Timeout time.Duration
}

var _ validation.Validator = (*Config)(nil)

// Sanitize sets defaults.
func (config *Config) Sanitize() {
	if config.Address == "" {
		config.Address = DefaultAddress
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
}

// Validate checks if the configuration is valid.
func (config *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Address", config.Address)).
		AddAssertion(config.Timeout > 0, "Timeout must be greater than 0").
		Validate()
}
