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

package validation

import (
	"fmt"
	"strings"
)

const maxPort = 65535

// HostPortValidator checks a host name and a port number taken apart,
// the way the Mesos master location is configured.
type HostPortValidator struct {
	host string
	port int
}

var _ Validator = (*HostPortValidator)(nil)

// NewHostPortValidator creates an instance of HostPortValidator
func NewHostPortValidator(host string, port int) *HostPortValidator {
	return &HostPortValidator{host: host, port: port}
}

// Validate implements Validator
func (v *HostPortValidator) Validate() error {
	if strings.TrimSpace(v.host) == "" {
		return fmt.Errorf("invalid address=(%s:%d): host is required", v.host, v.port)
	}

	if v.port <= 0 || v.port > maxPort {
		return fmt.Errorf("invalid address=(%s:%d): port out of range", v.host, v.port)
	}
	return nil
}
