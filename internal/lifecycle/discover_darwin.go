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

//go:build darwin

package lifecycle

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FindByExecutable lists every process with ps and matches its arguments.
// Arguments containing spaces are split, so such paths only match through
// the executable name.
func (d *ProcessDiscoverer) FindByExecutable(path string) ([]int, error) {
	output, err := exec.Command("ps", "-axww", "-o", "pid=,stat=,args=").Output()
	if err != nil {
		return nil, fmt.Errorf("ps command failed: %w", err)
	}

	script := isScript(path)
	var pids []int
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || strings.HasPrefix(fields[1], "Z") {
			continue
		}
		if matchImage(path, script, "", fields[2:]) {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}

// FindByPort asks lsof for listeners on port.
func (d *ProcessDiscoverer) FindByPort(port uint16) ([]int, error) {
	output, err := exec.Command("lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-t").Output()
	if err != nil {
		// lsof exits 1 when nothing matches
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof command failed: %w", err)
	}

	var pids []int
	for _, field := range strings.Fields(string(output)) {
		if pid, err := strconv.Atoi(field); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// Executable returns the command name ps reports for pid.
func (d *ProcessDiscoverer) Executable(pid int) (string, error) {
	output, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %d", ErrProcessNotRunning, pid)
	}
	return strings.TrimSpace(string(output)), nil
}
