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

package errors

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with key",
			err:  &ConfigError{Key: "system.data_dir", Reason: "must be absolute"},
			want: "config error at system.data_dir: must be absolute",
		},
		{
			name: "without key",
			err:  &ConfigError{Reason: "empty document"},
			want: "config error: empty document",
		},
		{
			name: "with cause",
			err:  &ConfigError{Key: "config_file", Reason: "failed to load", Cause: fs.ErrNotExist},
			want: "config error at config_file: failed to load: file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestConfigErrorUnwrap(t *testing.T) {
	err := &ConfigError{Reason: "failed to load", Cause: fs.ErrNotExist}
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	var visible UserVisibleError = err
	assert.True(t, visible.IsUserVisible())
	assert.NotEmpty(t, visible.Suggestion())
}

func TestTimeoutError(t *testing.T) {
	cause := errors.New("still running")
	err := &TimeoutError{Operation: "controller stop", Duration: 5 * time.Second, Cause: cause}

	assert.Equal(t, "controller stop operation timed out after 5s", err.Error())
	assert.ErrorIs(t, err, cause)
}
