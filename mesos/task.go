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

// TaskState is the lifecycle state of a Mesos task as reported by the master,
// e.g. "TASK_RUNNING".
type TaskState string

const (
	TaskStaging     TaskState = "TASK_STAGING"
	TaskStarting    TaskState = "TASK_STARTING"
	TaskRunning     TaskState = "TASK_RUNNING"
	TaskKilling     TaskState = "TASK_KILLING"
	TaskFinished    TaskState = "TASK_FINISHED"
	TaskFailed      TaskState = "TASK_FAILED"
	TaskKilled      TaskState = "TASK_KILLED"
	TaskError       TaskState = "TASK_ERROR"
	TaskLost        TaskState = "TASK_LOST"
	TaskDropped     TaskState = "TASK_DROPPED"
	TaskUnreachable TaskState = "TASK_UNREACHABLE"
	TaskGone        TaskState = "TASK_GONE"
	TaskUnknown     TaskState = "TASK_UNKNOWN"
)

// IsRunning reports whether the state is TASK_RUNNING
func (s TaskState) IsRunning() bool {
	return s == TaskRunning
}

// IsTerminal reports whether a task in this state will never run again.
// TASK_LOST and TASK_UNREACHABLE are not terminal: the task may come back.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskKilled, TaskFailed, TaskFinished, TaskError, TaskDropped, TaskGone:
		return true
	default:
		return false
	}
}

// Label is a single key/value pair attached to a task
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Port is one entry of a task's discovery port list.
// Its position in the list is the index referenced by port directives.
type Port struct {
	Number   int    `json:"number"`
	Name     string `json:"name,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// Discovery holds the service discovery info a framework attached to a task
type Discovery struct {
	Name  string `json:"name,omitempty"`
	Ports []Port `json:"ports,omitempty"`
}

// Task is a snapshot of a Mesos task. Terminal status updates usually carry
// only the ID and State, leaving Labels and Discovery empty.
type Task struct {
	ID        string     `json:"task_id"`
	AgentID   string     `json:"agent_id,omitempty"`
	State     TaskState  `json:"state"`
	Labels    []Label    `json:"labels,omitempty"`
	Discovery *Discovery `json:"discovery,omitempty"`
}

// ServiceName returns the discovery name of the task or an empty string
func (t *Task) ServiceName() string {
	if t == nil || t.Discovery == nil {
		return ""
	}
	return t.Discovery.Name
}

// Agent describes a Mesos agent
type Agent struct {
	ID       string `json:"agent_id"`
	Hostname string `json:"hostname"`
	Active   bool   `json:"active"`
}
