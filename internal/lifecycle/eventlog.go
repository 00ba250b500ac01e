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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event names.
const (
	EventStart          = "start"
	EventStartSuccess   = "start_success"
	EventStartFailure   = "start_failure"
	EventAttach         = "attach"
	EventAlreadyRunning = "already_running"
	EventStop           = "stop"
	EventStopSuccess    = "stop_success"
	EventStopFailure    = "stop_failure"
	EventExited         = "exited"
	EventLegacyMode     = "legacy_mode"
)

// LifecycleEvent represents a lifecycle event (start, stop, etc.).
type LifecycleEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	PID       int       `json:"pid,omitempty"`
	Path      string    `json:"path,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLog appends controller lifecycle events to a JSON-lines file.
// A nil *EventLog discards events.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog creates a new lifecycle event log.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the log file location.
func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogStart logs that a controller start was initiated.
func (l *EventLog) LogStart(path string) error {
	return l.write(LifecycleEvent{
		Event:   EventStart,
		Path:    path,
		Success: true,
		Message: "Controller start initiated",
	})
}

// LogStartSuccess logs a controller that is up.
func (l *EventLog) LogStartSuccess(pid int, path string, duration time.Duration) error {
	return l.write(LifecycleEvent{
		Event:   EventStartSuccess,
		PID:     pid,
		Path:    path,
		Success: true,
		Message: fmt.Sprintf("Controller started (duration: %v)", duration),
	})
}

// LogStartFailure logs a failed controller start.
func (l *EventLog) LogStartFailure(path string, err error) error {
	return l.write(LifecycleEvent{
		Event:   EventStartFailure,
		Path:    path,
		Success: false,
		Message: "Controller failed to start",
		Error:   errString(err),
	})
}

// LogAttach logs that an already running controller was adopted.
func (l *EventLog) LogAttach(pid int, path string) error {
	return l.write(LifecycleEvent{
		Event:   EventAttach,
		PID:     pid,
		Path:    path,
		Success: true,
		Message: "Attached to running controller",
	})
}

// LogAlreadyRunning logs that the controller is already running.
func (l *EventLog) LogAlreadyRunning(pid int) error {
	return l.write(LifecycleEvent{
		Event:   EventAlreadyRunning,
		PID:     pid,
		Success: true,
		Message: "Controller already running",
	})
}

// LogStop logs a controller stop request.
func (l *EventLog) LogStop(pid int) error {
	return l.write(LifecycleEvent{
		Event:   EventStop,
		PID:     pid,
		Success: true,
		Message: "Controller stop initiated",
	})
}

// LogStopSuccess logs a confirmed controller exit.
func (l *EventLog) LogStopSuccess(pid int, duration time.Duration) error {
	return l.write(LifecycleEvent{
		Event:   EventStopSuccess,
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("Controller stopped (duration: %v)", duration),
	})
}

// LogStopFailure logs a controller that could not be stopped.
func (l *EventLog) LogStopFailure(pid int, err error) error {
	return l.write(LifecycleEvent{
		Event:   EventStopFailure,
		PID:     pid,
		Success: false,
		Message: "Failed to stop controller",
		Error:   errString(err),
	})
}

// LogExited logs a controller that exited on its own.
func (l *EventLog) LogExited(pid int, err error) error {
	return l.write(LifecycleEvent{
		Event:   EventExited,
		PID:     pid,
		Success: err == nil,
		Message: "Controller exited",
		Error:   errString(err),
	})
}

// LogLegacyMode logs a change of the legacy pull marker.
func (l *EventLog) LogLegacyMode(enabled bool, err error) error {
	message := "Legacy pull disabled"
	if enabled {
		message = "Legacy pull enabled"
	}
	return l.write(LifecycleEvent{
		Event:   EventLegacyMode,
		Success: err == nil,
		Message: message,
		Error:   errString(err),
	})
}

// write appends a lifecycle event to the log file.
func (l *EventLog) write(event LifecycleEvent) error {
	if l == nil || l.path == "" {
		return nil
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
