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

// Package directory keeps the mapping between Mesos agent ids and their host address.
package directory

import (
	"sync"

	"github.com/tochemey/mesosds/mesos"
)

// Directory maps agent ids to host addresses.
// It is safe for concurrent use.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]string
}

// New creates an empty Directory
func New() *Directory {
	return &Directory{
		agents: make(map[string]string),
	}
}

// LoadAll merges the given agents into the directory and returns how many were stored.
// Inactive agents and agents without id or hostname are skipped.
func (d *Directory) LoadAll(agents []*mesos.Agent) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	loaded := 0
	for _, agent := range agents {
		if agent == nil || !agent.Active {
			continue
		}
		if d.set(agent.ID, agent.Hostname) {
			loaded++
		}
	}
	return loaded
}

// Upsert sets the address of the given agent. It reports whether the entry was stored.
func (d *Directory) Upsert(agentID, hostAddress string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set(agentID, hostAddress)
}

// Remove deletes the given agent. It reports whether the agent was known.
func (d *Directory) Remove(agentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agents[agentID]; !ok {
		return false
	}
	delete(d.agents, agentID)
	return true
}

// Lookup returns the host address of the given agent
func (d *Directory) Lookup(agentID string) (string, bool) {
	d.mu.RLock()
	address, ok := d.agents[agentID]
	d.mu.RUnlock()
	return address, ok
}

// Len returns the number of known agents
func (d *Directory) Len() int {
	d.mu.RLock()
	size := len(d.agents)
	d.mu.RUnlock()
	return size
}

func (d *Directory) set(agentID, hostAddress string) bool {
	if agentID == "" || hostAddress == "" {
		return false
	}
	d.agents[agentID] = hostAddress
	return true
}
