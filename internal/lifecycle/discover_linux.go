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

//go:build linux

package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// tcpListen is the TCP_LISTEN state as reported in /proc/net/tcp.
const tcpListen = 0x0A

// FindByExecutable scans procfs for processes running path.
func (d *ProcessDiscoverer) FindByExecutable(path string) ([]int, error) {
	fs, err := procfs.NewFS(d.procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	script := isScript(path)
	var pids []int
	for _, p := range procs {
		if stat, err := p.Stat(); err != nil || stat.State == "Z" {
			continue
		}

		// Executable fails for other users' processes; the command line
		// is still readable.
		exe, _ := p.Executable()
		args, _ := p.CmdLine()

		if matchImage(path, script, exe, args) {
			pids = append(pids, p.PID)
		}
	}

	return pids, nil
}

// FindByPort maps listening sockets on port to their owning processes
// through the socket inodes in each process's descriptor table.
func (d *ProcessDiscoverer) FindByPort(port uint16) ([]int, error) {
	fs, err := procfs.NewFS(d.procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}

	inodes := make(map[uint64]struct{})

	tcp, err := fs.NetTCP()
	if err != nil {
		return nil, fmt.Errorf("failed to read tcp sockets: %w", err)
	}
	collectListeners(inodes, tcp, port)

	// Missing when IPv6 is disabled
	if tcp6, err := fs.NetTCP6(); err == nil {
		collectListeners(inodes, tcp6, port)
	}

	if len(inodes) == 0 {
		return nil, nil
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var pids []int
	for _, p := range procs {
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, target := range targets {
			inode, ok := socketInode(target)
			if !ok {
				continue
			}
			if _, found := inodes[inode]; found {
				pids = append(pids, p.PID)
				break
			}
		}
	}

	return pids, nil
}

// Executable returns the resolved /proc/<pid>/exe link.
func (d *ProcessDiscoverer) Executable(pid int) (string, error) {
	fs, err := procfs.NewFS(d.procRoot)
	if err != nil {
		return "", fmt.Errorf("failed to open procfs: %w", err)
	}

	p, err := fs.Proc(pid)
	if err != nil {
		return "", fmt.Errorf("%w: %d", ErrProcessNotRunning, pid)
	}

	exe, err := p.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to read executable of process %d: %w", pid, err)
	}
	return exe, nil
}

func collectListeners(inodes map[uint64]struct{}, lines procfs.NetTCP, port uint16) {
	for _, line := range lines {
		if line.St == tcpListen && line.LocalPort == uint64(port) {
			inodes[line.Inode] = struct{}{}
		}
	}
}

// socketInode parses a descriptor target of the form "socket:[12345]".
func socketInode(target string) (uint64, bool) {
	rest, ok := strings.CutPrefix(target, "socket:[")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "]")
	if !ok {
		return 0, false
	}
	inode, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}
