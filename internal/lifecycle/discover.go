// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import "errors"

// ErrDiscoveryUnsupported is returned by discovery lookups the platform
// cannot answer.
var ErrDiscoveryUnsupported = errors.New("process discovery not supported on this platform")

// Discoverer finds running processes that were not started by this
// program.
type Discoverer interface {
	// FindByExecutable returns the PIDs of live processes running the
	// program at path.
	FindByExecutable(path string) ([]int, error)

	// FindByPort returns the PIDs of processes holding a listening TCP
	// socket on port.
	FindByPort(port uint16) ([]int, error)

	// Executable returns the program a process is running.
	Executable(pid int) (string, error)
}

// ProcessDiscoverer is the Discoverer backed by the host's process table.
type ProcessDiscoverer struct {
	// procRoot is the procfs mount point, used on Linux only.
	procRoot string
}

// NewDiscoverer returns a discoverer for the running host.
func NewDiscoverer() *ProcessDiscoverer {
	return &ProcessDiscoverer{procRoot: "/proc"}
}

var _ Discoverer = (*ProcessDiscoverer)(nil)
