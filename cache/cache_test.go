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

package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("Endpoints of an unknown service is empty", func(t *testing.T) {
		c := New(1)
		endpoints := c.Endpoints("unknown")
		require.NotNil(t, endpoints)
		assert.Empty(t, endpoints)

		_, ok := c.Service("unknown")
		assert.False(t, ok)
	})
	t.Run("Upsert creates the service lazily", func(t *testing.T) {
		c := New(1)
		changed := c.Upsert("web", Record{TaskID: "web.1", IPAddress: "10.0.0.5", Port: 31000}, 10)
		require.True(t, changed)

		assert.Equal(t, []Endpoint{{IPAddress: "10.0.0.5", Port: 31000}}, c.Endpoints("web"))
		assert.EqualValues(t, 10, c.LoadTimestamp())

		service, ok := c.Service("web")
		require.True(t, ok)
		assert.EqualValues(t, 10, service.LastUpdateStamp)
		assert.Len(t, service.Records, 1)
	})
	t.Run("Upsert is idempotent", func(t *testing.T) {
		c := New(1)
		record := Record{TaskID: "web.1", IPAddress: "10.0.0.5", Port: 31000}
		require.True(t, c.Upsert("web", record, 10))
		require.False(t, c.Upsert("web", record, 11))

		assert.Len(t, c.Endpoints("web"), 1)
		services, endpoints := c.Stats()
		assert.Equal(t, 1, services)
		assert.Equal(t, 1, endpoints)
	})
	t.Run("Upsert overwrites a changed record", func(t *testing.T) {
		c := New(1)
		require.True(t, c.Upsert("web", Record{TaskID: "web.1", IPAddress: "10.0.0.5", Port: 31000}, 10))
		require.True(t, c.Upsert("web", Record{TaskID: "web.1", IPAddress: "10.0.0.6", Port: 31000}, 11))
		assert.Equal(t, []Endpoint{{IPAddress: "10.0.0.6", Port: 31000}}, c.Endpoints("web"))
	})
	t.Run("A task id is published under one service only", func(t *testing.T) {
		c := New(1)
		require.True(t, c.Upsert("web", Record{TaskID: "task.1", IPAddress: "10.0.0.5", Port: 31000}, 10))
		require.True(t, c.Upsert("api", Record{TaskID: "task.1", IPAddress: "10.0.0.5", Port: 31000}, 11))

		assert.Empty(t, c.Endpoints("web"))
		assert.Len(t, c.Endpoints("api"), 1)

		// the former service entry is kept
		_, ok := c.Service("web")
		assert.True(t, ok)
	})
	t.Run("Timestamps never go backwards", func(t *testing.T) {
		c := New(100)
		require.True(t, c.Upsert("web", Record{TaskID: "web.1", IPAddress: "10.0.0.5", Port: 31000}, 50))
		assert.EqualValues(t, 100, c.LoadTimestamp())

		require.True(t, c.Upsert("web", Record{TaskID: "web.2", IPAddress: "10.0.0.5", Port: 31001}, 200))
		require.True(t, c.Upsert("web", Record{TaskID: "web.3", IPAddress: "10.0.0.5", Port: 31002}, 150))

		service, ok := c.Service("web")
		require.True(t, ok)
		assert.EqualValues(t, 200, service.LastUpdateStamp)
		assert.EqualValues(t, 200, c.LoadTimestamp())
	})
	t.Run("Remove keeps the empty service entry", func(t *testing.T) {
		c := New(1)
		require.True(t, c.Upsert("web", Record{TaskID: "web.1", IPAddress: "10.0.0.5", Port: 31000}, 10))

		assert.True(t, c.Remove("web", "web.1"))
		assert.False(t, c.Remove("web", "web.1"))
		assert.False(t, c.Remove("unknown", "web.1"))

		assert.Empty(t, c.Endpoints("web"))
		service, ok := c.Service("web")
		require.True(t, ok)
		assert.Empty(t, service.Records)

		services, endpoints := c.Stats()
		assert.Equal(t, 1, services)
		assert.Zero(t, endpoints)
	})
	t.Run("Endpoints are ordered by task id", func(t *testing.T) {
		c := New(1)
		require.True(t, c.Upsert("web", Record{TaskID: "web.b", IPAddress: "10.0.0.6", Port: 2}, 10))
		require.True(t, c.Upsert("web", Record{TaskID: "web.a", IPAddress: "10.0.0.5", Port: 1}, 10))
		require.True(t, c.Upsert("api", Record{TaskID: "api.a", IPAddress: "10.0.0.7", Port: 3}, 10))

		assert.Equal(t, []Endpoint{
			{IPAddress: "10.0.0.5", Port: 1},
			{IPAddress: "10.0.0.6", Port: 2},
		}, c.Endpoints("web"))

		snapshot := c.Snapshot()
		require.Len(t, snapshot, 2)
		assert.Equal(t, "api", snapshot[0].Name)
		assert.Equal(t, "web", snapshot[1].Name)
	})
	t.Run("Concurrent readers and a writer", func(t *testing.T) {
		c := New(1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				taskID := fmt.Sprintf("web.%d", i)
				c.Upsert("web", Record{TaskID: taskID, IPAddress: "10.0.0.5", Port: 31000 + i}, int64(i))
				if i%2 == 0 {
					c.Remove("web", taskID)
				}
			}
		}()

		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					for _, endpoint := range c.Endpoints("web") {
						assert.NotEmpty(t, endpoint.IPAddress)
						assert.NotZero(t, endpoint.Port)
					}
				}
			}()
		}

		wg.Wait()
		assert.Len(t, c.Endpoints("web"), 100)
	})
}
