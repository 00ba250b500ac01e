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

// Package watch reports changes to the host agent configuration file.
//
// The directory holding the file is watched rather than the file itself,
// because editors and configuration management tools usually replace the
// file through a rename. Bursts of events are debounced into one change
// notification and notifications are rate limited.
package watch

import (
	"path/filepath"
	"time"
)

// Event types.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventDeleted  = "deleted"
	EventRenamed  = "renamed"
)

// Event describes one change to the watched file.
type Event struct {
	// Path is the absolute path of the watched file.
	Path string `json:"path"`

	// Op is one of the Event* types.
	Op string `json:"op"`

	// Size is zero for deleted and renamed files.
	Size int64 `json:"size,omitempty"`

	// MTime is zero for deleted and renamed files.
	MTime time.Time `json:"mtime,omitempty"`
}

// NewEvent creates an event for path.
func NewEvent(path, op string, size int64, mtime time.Time) *Event {
	return &Event{
		Path:  filepath.Clean(path),
		Op:    op,
		Size:  size,
		MTime: mtime,
	}
}
