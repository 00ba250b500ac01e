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

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrProcessNotRunning is returned when the process does not exist.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrShutdownTimeout is returned when the process doesn't exit within the timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// pollInterval is how often liveness is rechecked for processes this
// program did not start.
const pollInterval = 100 * time.Millisecond

// ProcessInfo contains information about a running process.
type ProcessInfo struct {
	PID     int
	Running bool
	Command string
}

// Process is a handle to a controller process. A process started through
// Spawner is reaped by a background goroutine and its exit is observed
// through Exited. A process found by discovery is adopted and its
// liveness is polled.
type Process struct {
	PID  int
	Path string

	done    chan struct{}
	mu      sync.Mutex
	exitErr error
}

func newSpawnedProcess(cmd *exec.Cmd, path string) *Process {
	p := &Process{
		PID:  cmd.Process.Pid,
		Path: path,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p
}

// Adopt returns a handle for a process that was not started by this
// program.
func Adopt(pid int, path string) *Process {
	return &Process{PID: pid, Path: path}
}

// Spawned reports whether this program started the process.
func (p *Process) Spawned() bool {
	return p.done != nil
}

// Exited returns a channel that is closed once a spawned process has been
// reaped. It returns nil for adopted processes.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// ExitError returns the error from waiting on a spawned process, nil while
// it is still running or when it exited with status 0.
func (p *Process) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	if p.done != nil {
		select {
		case <-p.done:
			return false
		default:
			return true
		}
	}
	return IsProcessRunning(p.PID)
}

// Wait blocks until the process exits or timeout elapses.
func (p *Process) Wait(timeout time.Duration) error {
	if p.done == nil {
		return WaitForExit(p.PID, timeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// WaitForExit waits for the process to exit, checking every interval.
// Returns ErrShutdownTimeout if the process is still running after timeout.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if !IsProcessRunning(pid) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrShutdownTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Stop asks the process to exit and waits up to grace for it to do so.
// If it is still running, the process is killed and Stop waits up to
// killWait for the exit to be confirmed.
func Stop(p *Process, grace, killWait time.Duration) error {
	if !p.Alive() {
		return ErrProcessNotRunning
	}

	if err := terminate(p.PID); err != nil {
		if !p.Alive() {
			return nil
		}
		return fmt.Errorf("failed to request termination: %w", err)
	}

	if err := p.Wait(grace); err == nil {
		return nil
	}

	if err := forceKill(p.PID); err != nil && p.Alive() {
		return fmt.Errorf("failed to kill process: %w", err)
	}

	if err := p.Wait(killWait); err != nil {
		return fmt.Errorf("process did not exit after kill: %w", err)
	}

	return nil
}

// GetProcessInfo returns information about the process with the given PID.
func GetProcessInfo(pid int) (*ProcessInfo, error) {
	info := &ProcessInfo{
		PID:     pid,
		Running: IsProcessRunning(pid),
	}

	if info.Running {
		cmd, err := getProcessCommand(pid)
		if err != nil {
			// Process exists but we can't read command - that's ok
			info.Command = "<unknown>"
		} else {
			info.Command = cmd
		}
	}

	return info, nil
}

// IsExecutable reports whether path names a regular file this platform
// can execute.
func IsExecutable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && executableMode(info)
}

// MatchesExecutable reports whether a process image, given as the
// resolved executable and the argument vector, belongs to the program at
// path. An interpreted program shows the interpreter as its executable
// and the script as the first argument.
func MatchesExecutable(path, exe string, args []string) bool {
	return matchImage(path, isScript(path), exe, args)
}

func matchImage(path string, script bool, exe string, args []string) bool {
	if samePath(path, exe) {
		return true
	}
	if len(args) > 0 && filepath.IsAbs(args[0]) && samePath(path, args[0]) {
		return true
	}
	if script && len(args) > 1 && filepath.IsAbs(args[1]) && samePath(path, args[1]) {
		return true
	}
	return false
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

func isScript(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 2)
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return bytes.Equal(head, []byte("#!"))
}
