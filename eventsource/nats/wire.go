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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tochemey/mesosds/mesos"
)

// Event types published by the bridge on the events subject.
// They follow the Mesos operator API event names.
const (
	EventSubscribed   = "SUBSCRIBED"
	EventUnsubscribed = "UNSUBSCRIBED"
	EventError        = "ERROR"
	EventTaskAdded    = "TASK_ADDED"
	EventTaskUpdated  = "TASK_UPDATED"
	EventAgentAdded   = "AGENT_ADDED"
	EventAgentRemoved = "AGENT_REMOVED"
)

// Envelope is the JSON message carried on the events subject
type Envelope struct {
	Type    string       `json:"type"`
	Task    *mesos.Task  `json:"task,omitempty"`
	Agent   *mesos.Agent `json:"agent,omitempty"`
	AgentID string       `json:"agent_id,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// SessionRequest asks the bridge to hold a session with the given master
type SessionRequest struct {
	Client string             `json:"client"`
	Master mesos.MasterConfig `json:"master"`
}

// SessionReply is the bridge answer to a SessionRequest
type SessionReply struct {
	Error string `json:"error,omitempty"`
}

// AgentsReply carries the full agent list
type AgentsReply struct {
	Agents []*mesos.Agent `json:"agents"`
	Error  string         `json:"error,omitempty"`
}

// TasksReply carries the full task list. It answers both the tasks request
// and the reconcile request.
type TasksReply struct {
	Tasks []*mesos.Task `json:"tasks"`
	Error string        `json:"error,omitempty"`
}

var errMalformedEnvelope = errors.New("malformed envelope")

// decodeEnvelope turns a bridge message into a lifecycle event
func decodeEnvelope(data []byte) (mesos.Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}

	switch envelope.Type {
	case EventSubscribed:
		return mesos.Subscribed{}, nil
	case EventUnsubscribed:
		return mesos.Unsubscribed{}, nil
	case EventError:
		return mesos.Error{Err: errors.New(envelope.Error)}, nil
	case EventTaskAdded:
		if envelope.Task == nil {
			return nil, fmt.Errorf("%w: %s without task", errMalformedEnvelope, envelope.Type)
		}
		return mesos.TaskAdded{Task: envelope.Task}, nil
	case EventTaskUpdated:
		if envelope.Task == nil {
			return nil, fmt.Errorf("%w: %s without task", errMalformedEnvelope, envelope.Type)
		}
		return mesos.TaskUpdated{Task: envelope.Task}, nil
	case EventAgentAdded:
		if envelope.Agent == nil {
			return nil, fmt.Errorf("%w: %s without agent", errMalformedEnvelope, envelope.Type)
		}
		return mesos.AgentAdded{Agent: envelope.Agent}, nil
	case EventAgentRemoved:
		if envelope.AgentID == "" {
			return nil, fmt.Errorf("%w: %s without agent id", errMalformedEnvelope, envelope.Type)
		}
		return mesos.AgentRemoved{AgentID: envelope.AgentID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errMalformedEnvelope, envelope.Type)
	}
}
