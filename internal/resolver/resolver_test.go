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

package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/mesosds/cache"
	"github.com/tochemey/mesosds/mesos"
)

type agentMap map[string]string

func (m agentMap) Lookup(agentID string) (string, bool) {
	address, ok := m[agentID]
	return address, ok
}

func runningTask() *mesos.Task {
	return &mesos.Task{
		ID:      "web.1",
		AgentID: "a1",
		State:   mesos.TaskRunning,
		Labels:  []mesos.Label{{Key: "ENVOY_PORT_INDEX", Value: "0"}},
		Discovery: &mesos.Discovery{
			Name:  "web",
			Ports: []mesos.Port{{Number: 31000}},
		},
	}
}

func TestResolve(t *testing.T) {
	agents := agentMap{"a1": "10.0.0.5", "a2": ""}

	t.Run("With a fully resolvable task", func(t *testing.T) {
		resolution, err := Resolve(runningTask(), agents)
		require.NoError(t, err)
		require.NotNil(t, resolution)
		assert.Equal(t, "web", resolution.ServiceName)
		assert.Equal(t, cache.Record{TaskID: "web.1", IPAddress: "10.0.0.5", Port: 31000}, resolution.Record)
	})
	t.Run("With a later port index", func(t *testing.T) {
		task := runningTask()
		task.Labels = []mesos.Label{
			{Key: "ENVOY_PORT_INDEX", Value: "0"},
			{Key: "owner", Value: "team"},
			{Key: "ENVOY_PORT_INDEX", Value: " 1 "},
		}
		task.Discovery.Ports = []mesos.Port{{Number: 31000}, {Number: 31001}}

		resolution, err := Resolve(task, agents)
		require.NoError(t, err)
		assert.Equal(t, 31001, resolution.Record.Port)
	})

	testCases := []struct {
		name   string
		mutate func(task *mesos.Task)
		err    error
	}{
		{
			name:   "task is staging",
			mutate: func(task *mesos.Task) { task.State = mesos.TaskStaging },
			err:    ErrTaskNotRunning,
		},
		{
			name:   "task is finished",
			mutate: func(task *mesos.Task) { task.State = mesos.TaskFinished },
			err:    ErrTaskNotRunning,
		},
		{
			name:   "labels are missing",
			mutate: func(task *mesos.Task) { task.Labels = nil },
			err:    ErrMissingPortIndex,
		},
		{
			name:   "only unrelated labels",
			mutate: func(task *mesos.Task) { task.Labels = []mesos.Label{{Key: "PORT_INDEX", Value: "0"}} },
			err:    ErrMissingPortIndex,
		},
		{
			name:   "port index is not a number",
			mutate: func(task *mesos.Task) { task.Labels[0].Value = "first" },
			err:    ErrInvalidPortIndex,
		},
		{
			name:   "port index is negative",
			mutate: func(task *mesos.Task) { task.Labels[0].Value = "-1" },
			err:    ErrInvalidPortIndex,
		},
		{
			name:   "port index is empty",
			mutate: func(task *mesos.Task) { task.Labels[0].Value = "" },
			err:    ErrInvalidPortIndex,
		},
		{
			name:   "discovery is missing",
			mutate: func(task *mesos.Task) { task.Discovery = nil },
			err:    ErrMissingPorts,
		},
		{
			name:   "discovery ports are empty",
			mutate: func(task *mesos.Task) { task.Discovery.Ports = nil },
			err:    ErrMissingPorts,
		},
		{
			name:   "port index out of range",
			mutate: func(task *mesos.Task) { task.Labels[0].Value = "3" },
			err:    ErrPortNotFound,
		},
		{
			name:   "port number is zero",
			mutate: func(task *mesos.Task) { task.Discovery.Ports[0].Number = 0 },
			err:    ErrPortNotFound,
		},
		{
			name:   "port number is out of range",
			mutate: func(task *mesos.Task) { task.Discovery.Ports[0].Number = 70000 },
			err:    ErrPortNotFound,
		},
		{
			name:   "agent is unknown",
			mutate: func(task *mesos.Task) { task.AgentID = "a9" },
			err:    ErrUnknownAgent,
		},
		{
			name:   "agent has no address",
			mutate: func(task *mesos.Task) { task.AgentID = "a2" },
			err:    ErrUnknownAgent,
		},
		{
			name:   "discovery name is empty",
			mutate: func(task *mesos.Task) { task.Discovery.Name = "" },
			err:    ErrMissingServiceName,
		},
		{
			name: "first failing check wins",
			mutate: func(task *mesos.Task) {
				task.AgentID = "a9"
				task.Discovery.Name = ""
			},
			err: ErrUnknownAgent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			task := runningTask()
			tc.mutate(task)
			resolution, err := Resolve(task, agents)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.err))
			assert.Nil(t, resolution)
		})
	}

	t.Run("With a nil task", func(t *testing.T) {
		resolution, err := Resolve(nil, agents)
		assert.ErrorIs(t, err, ErrTaskNotRunning)
		assert.Nil(t, resolution)
	})
}

func TestServiceNameFromTaskID(t *testing.T) {
	assert.Equal(t, "web", ServiceNameFromTaskID("web.1"))
	assert.Equal(t, "group.web", ServiceNameFromTaskID("group.web.a1b2"))
	assert.Equal(t, "", ServiceNameFromTaskID("web"))
	assert.Equal(t, "", ServiceNameFromTaskID(".1"))
	assert.Equal(t, "web", ServiceNameFromTaskID("web."))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "resolved", Reason(nil))
	assert.Equal(t, "unknown_agent", Reason(ErrUnknownAgent))
	assert.Equal(t, "port_not_found", Reason(ErrPortNotFound))
	assert.Equal(t, "unknown", Reason(errors.New("boom")))
}
