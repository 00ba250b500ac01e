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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Spawner handles detached process spawning for the controller.
type Spawner struct {
	// Environment passed to the child process
	Env []string

	// Working directory of the child; empty inherits ours
	Dir string
}

// NewSpawner creates a new process spawner.
func NewSpawner() *Spawner {
	return &Spawner{
		Env: os.Environ(),
	}
}

// WithEnv sets the environment for the spawned process.
func (s *Spawner) WithEnv(env []string) *Spawner {
	s.Env = env
	return s
}

// WithDir sets the working directory for the spawned process.
func (s *Spawner) WithDir(dir string) *Spawner {
	s.Dir = dir
	return s
}

// Spawn starts binary detached from the caller's session.
// The process:
// - Runs in its own session (not killed on terminal hangup)
// - Has stdin closed, stdout/stderr appended to logPath, or discarded
//   when logPath is empty
//
// The returned handle reaps the process when it exits.
func (s *Spawner) Spawn(binary string, args []string, logPath string) (*Process, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.Env
	cmd.Dir = s.Dir
	cmd.Stdin = nil
	cmd.SysProcAttr = detachedAttr()

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		// The child holds its own descriptor after Start
		defer logFile.Close()

		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return newSpawnedProcess(cmd, binary), nil
}
