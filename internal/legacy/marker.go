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

// Package legacy manages the legacy pull marker, a zero-byte file whose
// presence tells the controller that the host agent still serves data
// the legacy way. The file content is never read; existence is the whole
// signal.
//
// The marker appears through a rename from a temporary file in the same
// directory, so a reader never sees a half-created file.
package legacy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tombee/hostagent/internal/contract"
)

// ErrMarkerWrite is returned when the marker cannot be created or removed.
// The legacy mode actually in effect is then unknown.
var ErrMarkerWrite = errors.New("legacy pull marker update failed")

// Marker is the legacy pull marker in one data directory.
type Marker struct {
	dir string
}

// NewMarker returns the marker for the given data directory.
func NewMarker(dir string) *Marker {
	return &Marker{dir: dir}
}

// EnableLegacyMode creates or deletes the marker in dir.
func EnableLegacyMode(dir string, enable bool) error {
	return NewMarker(dir).Enable(enable)
}

// Path returns the marker location.
func (m *Marker) Path() string {
	return filepath.Join(m.dir, contract.LegacyPullFile)
}

// Enabled reports whether the marker exists.
func (m *Marker) Enabled() (bool, error) {
	info, err := os.Stat(m.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat legacy pull marker: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("legacy pull marker %s is a directory", m.Path())
	}
	return true, nil
}

// Enable creates the marker when enable is true and removes it otherwise.
// Both directions are idempotent.
func (m *Marker) Enable(enable bool) error {
	if enable {
		return m.create()
	}
	return m.remove()
}

func (m *Marker) create() error {
	exists, err := m.Enabled()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarkerWrite, err)
	}
	if exists {
		return nil
	}

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("%w: failed to create data directory: %w", ErrMarkerWrite, err)
	}

	tmp, err := os.CreateTemp(m.dir, "."+contract.LegacyPullFile+"-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary marker: %w", ErrMarkerWrite, err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to sync temporary marker: %w", ErrMarkerWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close temporary marker: %w", ErrMarkerWrite, err)
	}

	if err := os.Rename(tmpPath, m.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to move marker into place: %w", ErrMarkerWrite, err)
	}

	syncDir(m.dir)
	return nil
}

func (m *Marker) remove() error {
	exists, err := m.Enabled()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarkerWrite, err)
	}
	if !exists {
		return nil
	}

	err = os.Remove(m.Path())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove marker: %w", ErrMarkerWrite, err)
	}
	if err == nil {
		syncDir(m.dir)
	}
	return nil
}

// syncDir makes a rename or unlink durable. Best effort: not every
// platform can fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
