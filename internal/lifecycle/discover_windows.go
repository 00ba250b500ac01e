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

//go:build windows

package lifecycle

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// FindByExecutable walks a toolhelp snapshot, compares image names first
// and resolves full paths only for candidates.
func (d *ProcessDiscoverer) FindByExecutable(path string) ([]int, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	base := filepath.Base(path)
	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var pids []int
	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		if !strings.EqualFold(windows.UTF16ToString(entry.ExeFile[:]), base) {
			continue
		}
		image, err := processImage(entry.ProcessID)
		if err != nil {
			continue
		}
		if samePath(path, image) || strings.EqualFold(filepath.Clean(path), filepath.Clean(image)) {
			pids = append(pids, int(entry.ProcessID))
		}
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("failed to walk processes: %w", err)
	}

	return pids, nil
}

// FindByPort is not available without the IP helper API.
func (d *ProcessDiscoverer) FindByPort(port uint16) ([]int, error) {
	return nil, ErrDiscoveryUnsupported
}

// Executable returns the full image path of pid.
func (d *ProcessDiscoverer) Executable(pid int) (string, error) {
	return processImage(uint32(pid))
}
