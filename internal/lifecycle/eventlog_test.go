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
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []LifecycleEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open event log: %v", err)
	}
	defer f.Close()

	var events []LifecycleEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event LifecycleEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("Invalid event line %q: %v", scanner.Text(), err)
		}
		events = append(events, event)
	}
	return events
}

func TestEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "lifecycle.log")
	log := NewEventLog(path)

	if err := log.LogStart("/opt/agent/agent-ctl"); err != nil {
		t.Fatalf("LogStart() error = %v", err)
	}
	log.LogStartSuccess(42, "/opt/agent/agent-ctl", 150*time.Millisecond)
	log.LogStopFailure(42, errors.New("still running"))
	log.LogLegacyMode(true, nil)

	events := readEvents(t, path)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}

	wantNames := []string{EventStart, EventStartSuccess, EventStopFailure, EventLegacyMode}
	seen := make(map[string]bool)
	for i, event := range events {
		if event.Event != wantNames[i] {
			t.Errorf("event[%d] = %q, want %q", i, event.Event, wantNames[i])
		}
		if event.ID == "" || seen[event.ID] {
			t.Errorf("event[%d] id %q is empty or repeated", i, event.ID)
		}
		seen[event.ID] = true
		if event.Timestamp.IsZero() {
			t.Errorf("event[%d] has no timestamp", i)
		}
	}

	if events[1].PID != 42 || events[1].Path != "/opt/agent/agent-ctl" {
		t.Errorf("start_success = %+v", events[1])
	}
	if events[2].Success || events[2].Error != "still running" {
		t.Errorf("stop_failure = %+v", events[2])
	}
	if events[3].Message != "Legacy pull enabled" {
		t.Errorf("legacy message = %q", events[3].Message)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat event log: %v", err)
	}
	if mode := info.Mode() & os.ModePerm; mode != 0600 {
		t.Errorf("event log mode = %04o, want 0600", mode)
	}
}

func TestEventLog_Nil(t *testing.T) {
	var log *EventLog
	if err := log.LogStop(1); err != nil {
		t.Errorf("nil EventLog returned error: %v", err)
	}
	if log.Path() != "" {
		t.Error("nil EventLog has a path")
	}
	if err := NewEventLog("").LogExited(1, nil); err != nil {
		t.Errorf("EventLog without path returned error: %v", err)
	}
}
