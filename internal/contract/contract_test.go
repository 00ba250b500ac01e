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

package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	require.NoError(t, Verify())
}

func TestWireValues(t *testing.T) {
	// These literals are part of the wire contract with the controller.
	assert.Equal(t, uint16(50001), Port)
	assert.Equal(t, "allow-legacy-pull", LegacyPullFile)
}

func TestShared(t *testing.T) {
	def, err := Shared()
	require.NoError(t, err)

	assert.Equal(t, Version, def.Version)
	assert.Equal(t, Port, def.Port)
	assert.Equal(t, LegacyPullFile, def.LegacyPullFile)
	assert.Equal(t, ControllerBinary, def.ControllerBinary)
	assert.Equal(t, ControllerArgs, def.ControllerArgs)
}

func TestCheckReportsDrift(t *testing.T) {
	def, err := parse([]byte(`
version: 1
port: 50002
legacy_pull_file: allow-legacy
controller_binary: agent-ctl
controller_args: [daemon]
`))
	require.NoError(t, err)

	err = def.check()
	require.ErrorIs(t, err, ErrDrift)
	assert.Contains(t, err.Error(), "port: shared 50002, compiled 50001")
	assert.Contains(t, err.Error(), `legacy_pull_file: shared "allow-legacy"`)
	assert.NotContains(t, err.Error(), "controller_binary")
}

func TestParseInvalid(t *testing.T) {
	_, err := parse([]byte("port: [not, a, number"))
	assert.Error(t, err)
}
