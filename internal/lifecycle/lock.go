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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrLockTimeout is returned when the lock is still held by someone
	// else when the acquisition deadline passes.
	ErrLockTimeout = errors.New("timed out waiting for lifecycle lock")

	// ErrUnsafeDirectory is returned when the lock file parent is world-writable.
	ErrUnsafeDirectory = errors.New("lock file directory is world-writable")
)

// lockRetryInterval is the pause between acquisition attempts.
const lockRetryInterval = 50 * time.Millisecond

// Lock is an exclusive advisory lock on a file, shared between processes.
// The lock belongs to the open file, so two Lock values on the same path
// exclude each other even inside one process. The file is left in place
// on release; only the lock matters.
type Lock struct {
	path string
	file *os.File
}

// NewLock creates a lock for the given path.
func NewLock(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock, retrying until timeout. It creates the parent
// directory if needed and records the holder's PID in the file.
func (l *Lock) Acquire(timeout time.Duration) error {
	if l.file != nil {
		return nil
	}

	// Verify parent directory is safe
	parentDir := filepath.Dir(l.path)
	if err := verifyDirectorySafety(parentDir); err != nil {
		return fmt.Errorf("unsafe lock file location: %w", err)
	}

	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		locked, err := tryLock(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if locked {
			break
		}
		if !time.Now().Before(deadline) {
			f.Close()
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}
		time.Sleep(lockRetryInterval)
	}

	// The holder PID is informational; a failed write leaves the lock valid
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
		f.Sync()
	}

	l.file = f
	return nil
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	err := unlock(l.file)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Held reports whether this Lock currently owns the lock.
func (l *Lock) Held() bool {
	return l.file != nil
}

// verifyDirectorySafety checks that the directory is not world-writable.
// Someone else able to replace the lock file could otherwise hold it
// forever.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		// Directory doesn't exist yet - that's fine, we'll create it
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	// Sticky directories such as /tmp are world-writable but safe
	mode := info.Mode()
	if mode&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}

	return nil
}
