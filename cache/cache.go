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

// Package cache holds the live service endpoint map.
//
// The cache is written by a single reconciliation loop and read concurrently by
// any number of query handlers. Records are stored by value, so a reader only
// ever sees fully built records. Service entries are created lazily and are
// never deleted: a service without endpoints is a valid, queryable state.
package cache

import (
	"sort"
	"sync"
)

// Endpoint is a resolved network endpoint as returned to consumers
type Endpoint struct {
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
}

// Record is the endpoint published for one running task
type Record struct {
	TaskID    string
	IPAddress string
	Port      int
}

// Endpoint returns the consumer view of the record
func (r Record) Endpoint() Endpoint {
	return Endpoint{IPAddress: r.IPAddress, Port: r.Port}
}

// Service is a point-in-time copy of a service entry
type Service struct {
	Name            string
	Records         []Record
	LastUpdateStamp int64
}

type entry struct {
	tasks      map[string]Record
	lastUpdate int64
}

// Cache maps service names to the endpoint records of their running tasks
type Cache struct {
	mu            sync.RWMutex
	loadTimestamp int64
	services      map[string]*entry
	// owners tracks which service a task id is published under
	owners map[string]string
}

// New creates an empty Cache stamped with the given load timestamp
func New(loadTimestamp int64) *Cache {
	return &Cache{
		loadTimestamp: loadTimestamp,
		services:      make(map[string]*entry),
		owners:        make(map[string]string),
	}
}

// Upsert writes the record under the given service and bumps the service and
// cache timestamps. A task published under another service is first removed
// from it so a task id is never listed twice. It reports whether the cache
// content changed.
func (c *Cache) Upsert(serviceName string, record Record, timestamp int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.owners[record.TaskID]; ok && owner != serviceName {
		if previous, ok := c.services[owner]; ok {
			delete(previous.tasks, record.TaskID)
		}
	}

	service, ok := c.services[serviceName]
	if !ok {
		service = &entry{tasks: make(map[string]Record), lastUpdate: timestamp}
		c.services[serviceName] = service
	}

	current, exists := service.tasks[record.TaskID]
	service.tasks[record.TaskID] = record
	c.owners[record.TaskID] = serviceName

	if timestamp > service.lastUpdate {
		service.lastUpdate = timestamp
	}
	if timestamp > c.loadTimestamp {
		c.loadTimestamp = timestamp
	}

	return !exists || current != record
}

// Remove deletes the record of the given task from the given service.
// It reports whether a record was removed.
func (c *Cache) Remove(serviceName, taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	service, ok := c.services[serviceName]
	if !ok {
		return false
	}

	if _, ok := service.tasks[taskID]; !ok {
		return false
	}

	delete(service.tasks, taskID)
	if c.owners[taskID] == serviceName {
		delete(c.owners, taskID)
	}
	return true
}

// Endpoints returns the endpoints of the given service ordered by task id.
// Unknown services and services without running tasks both yield an empty slice.
func (c *Cache) Endpoints(serviceName string) []Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	service, ok := c.services[serviceName]
	if !ok || len(service.tasks) == 0 {
		return []Endpoint{}
	}

	records := sortedRecords(service.tasks)
	endpoints := make([]Endpoint, len(records))
	for i, record := range records {
		endpoints[i] = record.Endpoint()
	}
	return endpoints
}

// Service returns a copy of the given service entry
func (c *Cache) Service(serviceName string) (*Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	service, ok := c.services[serviceName]
	if !ok {
		return nil, false
	}

	return &Service{
		Name:            serviceName,
		Records:         sortedRecords(service.tasks),
		LastUpdateStamp: service.lastUpdate,
	}, true
}

// Snapshot returns a copy of every service entry ordered by service name
func (c *Cache) Snapshot() []*Service {
	c.mu.RLock()
	defer c.mu.RUnlock()

	services := make([]*Service, 0, len(c.services))
	for name, service := range c.services {
		services = append(services, &Service{
			Name:            name,
			Records:         sortedRecords(service.tasks),
			LastUpdateStamp: service.lastUpdate,
		})
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].Name < services[j].Name
	})
	return services
}

// LoadTimestamp returns the time of the last write in unix milliseconds
func (c *Cache) LoadTimestamp() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadTimestamp
}

// Stats returns the number of services and endpoints currently held
func (c *Cache) Stats() (services int, endpoints int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.services), len(c.owners)
}

func sortedRecords(tasks map[string]Record) []Record {
	records := make([]Record, 0, len(tasks))
	for _, record := range tasks {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].TaskID < records[j].TaskID
	})
	return records
}
