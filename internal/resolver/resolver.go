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

// Package resolver turns a task snapshot into the endpoint record it publishes.
package resolver

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tochemey/mesosds/cache"
	"github.com/tochemey/mesosds/internal/labels"
	"github.com/tochemey/mesosds/mesos"
)

// The reasons a task cannot be resolved into an endpoint
var (
	ErrTaskNotRunning     = errors.New("task is not running")
	ErrMissingPortIndex   = errors.New("port index label is missing")
	ErrInvalidPortIndex   = errors.New("port index label is not a non-negative integer")
	ErrMissingPorts       = errors.New("task has no discovery ports")
	ErrPortNotFound       = errors.New("no valid discovery port at index")
	ErrUnknownAgent       = errors.New("agent address is unknown")
	ErrMissingServiceName = errors.New("discovery name is missing")
)

const maxPort = 65535

// AgentLookup returns the host address of an agent
type AgentLookup interface {
	Lookup(agentID string) (string, bool)
}

// Resolution is a successfully resolved task
type Resolution struct {
	ServiceName string
	Record      cache.Record
}

// Resolve computes the endpoint published by the given task.
// The checks run in a fixed order and the first failing one is returned.
func Resolve(task *mesos.Task, agents AgentLookup) (*Resolution, error) {
	if task == nil || !task.State.IsRunning() {
		return nil, ErrTaskNotRunning
	}

	directives := labels.Extract(task.Labels)
	rawIndex, ok := directives[labels.PortIndex]
	if !ok {
		return nil, ErrMissingPortIndex
	}

	index, err := strconv.Atoi(strings.TrimSpace(rawIndex))
	if err != nil || index < 0 {
		return nil, ErrInvalidPortIndex
	}

	if task.Discovery == nil || len(task.Discovery.Ports) == 0 {
		return nil, ErrMissingPorts
	}

	if index >= len(task.Discovery.Ports) {
		return nil, ErrPortNotFound
	}

	port := task.Discovery.Ports[index].Number
	if port <= 0 || port > maxPort {
		return nil, ErrPortNotFound
	}

	address, ok := agents.Lookup(task.AgentID)
	if !ok || address == "" {
		return nil, ErrUnknownAgent
	}

	serviceName := task.ServiceName()
	if serviceName == "" {
		return nil, ErrMissingServiceName
	}

	return &Resolution{
		ServiceName: serviceName,
		Record: cache.Record{
			TaskID:    task.ID,
			IPAddress: address,
			Port:      port,
		},
	}, nil
}

// ServiceNameFromTaskID derives the service name from a task id by dropping
// its last dot-separated segment, e.g. "web.1" yields "web". An id without a
// dot yields an empty name.
func ServiceNameFromTaskID(taskID string) string {
	i := strings.LastIndex(taskID, ".")
	if i < 0 {
		return ""
	}
	return taskID[:i]
}

// Reason returns a short label for a resolution error, suitable for metrics
func Reason(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrTaskNotRunning):
		return "not_running"
	case errors.Is(err, ErrMissingPortIndex):
		return "missing_port_index"
	case errors.Is(err, ErrInvalidPortIndex):
		return "invalid_port_index"
	case errors.Is(err, ErrMissingPorts):
		return "missing_ports"
	case errors.Is(err, ErrPortNotFound):
		return "port_not_found"
	case errors.Is(err, ErrUnknownAgent):
		return "unknown_agent"
	case errors.Is(err, ErrMissingServiceName):
		return "missing_service_name"
	default:
		return "unknown"
	}
}
