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

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hostagent/internal/commands/shared"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "hostagent", SilenceUsage: true, SilenceErrors: true}
	_, _, jsonFlag, configFlag := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonFlag, "json", false, "")
	root.PersistentFlags().StringVar(configFlag, "config", "", "")
	root.AddCommand(NewConfigCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCheck(t *testing.T) {
	dataDir := t.TempDir()
	binDir := t.TempDir()

	tests := []struct {
		name       string
		controller string
		start      bool
		legacy     bool
	}{
		{"run", "run: true", true, false},
		{"legacy overrides run", "run: true\n    legacy: true", false, true},
		{"missing run", "legacy: no", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "system:\n  data_dir: "+dataDir+"\n  service_path: "+filepath.Join(binDir, "hostagent")+"\n  controller:\n    "+tt.controller+"\n")

			out, err := execute(t, "config", "check", "--json", "--config", path)
			require.NoError(t, err)

			var resp map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
			assert.Equal(t, tt.start, resp["start_controller"])
			assert.Equal(t, tt.legacy, resp["legacy"])
			assert.Equal(t, filepath.Join(binDir, "agent-ctl"), resp["controller_path"])
			assert.Equal(t, false, resp["controller_exists"])
			assert.Equal(t, path, resp["config_path"])
		})
	}
}

func TestConfigCheck_HumanOutput(t *testing.T) {
	path := writeConfig(t, "system:\n  data_dir: "+t.TempDir()+"\n  service_path: /opt/agent/hostagent\n  controller:\n    run: true\n    legacy: true\n")

	out, err := execute(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "legacy pull mode overrides run")
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := writeConfig(t, "system:\n  data_dir: relative\n")

	_, err := execute(t, "config", "check", "--config", path)
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}

func TestConfigShow(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "system:\n  data_dir: "+dataDir+"\n  controller:\n    stop_timeout: 7s\n")

	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "data_dir: "+dataDir)
	assert.Contains(t, out, "stop_timeout: 7s")
}

func TestConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := execute(t, "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "does not exist")
}
