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

// Package labels extracts the endpoint directives a task opts into through its labels.
package labels

import (
	"strings"

	"github.com/tochemey/mesosds/mesos"
)

const (
	// Prefix marks a label as an endpoint directive
	Prefix = "ENVOY_"
	// PortIndex selects which discovery port of the task is published
	PortIndex = "ENVOY_PORT_INDEX"
)

// Extract returns the directive labels keyed by label key.
// When a key is repeated the last value wins. It never returns nil.
func Extract(labels []mesos.Label) map[string]string {
	directives := make(map[string]string)
	for _, label := range labels {
		if strings.HasPrefix(label.Key, Prefix) {
			directives[label.Key] = label.Value
		}
	}
	return directives
}
