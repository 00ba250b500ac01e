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

package run

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hostagent/internal/commands/shared"
	"github.com/tombee/hostagent/internal/config"
	"github.com/tombee/hostagent/internal/legacy"
	"github.com/tombee/hostagent/internal/log"
	"github.com/tombee/hostagent/internal/watch"
)

func writeConfig(t *testing.T, path, dataDir string, legacyMode bool) {
	t.Helper()
	body := "system:\n" +
		"  data_dir: " + dataDir + "\n" +
		"  service_path: " + filepath.Join(dataDir, "bin", "hostagent") + "\n" +
		"  controller:\n" +
		"    run: false\n"
	if legacyMode {
		body += "    legacy: true\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

func newTestAgent(t *testing.T, configPath string) *agent {
	t.Helper()
	shared.SetConfigPathForTest(configPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	rt, err := shared.LoadRuntime()
	require.NoError(t, err)
	rt.Logger = log.Discard()

	a := newAgent(rt)
	a.logger = rt.Logger
	a.watchOptions = watch.Options{Debounce: 20 * time.Millisecond, MinInterval: 10 * time.Millisecond}
	return a
}

func TestAgent_ReloadsOnChange(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "hostagent.yaml")
	writeConfig(t, configPath, dataDir, false)

	a := newTestAgent(t, configPath)
	marker := legacy.NewMarker(dataDir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	// The initial pass runs before the watcher starts, so give the
	// watcher a moment to register before changing the file.
	time.Sleep(200 * time.Millisecond)
	writeConfig(t, configPath, dataDir, true)

	require.Eventually(t, func() bool {
		enabled, err := marker.Enabled()
		return err == nil && enabled
	}, 5*time.Second, 20*time.Millisecond)

	writeConfig(t, configPath, dataDir, false)
	require.Eventually(t, func() bool {
		enabled, err := marker.Enabled()
		return err == nil && !enabled
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestAgent_InvalidReloadKeepsState(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "hostagent.yaml")
	writeConfig(t, configPath, dataDir, true)

	a := newTestAgent(t, configPath)
	marker := legacy.NewMarker(dataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool {
		enabled, err := marker.Enabled()
		return err == nil && enabled
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(configPath, []byte("system: [not a map\n"), 0600))
	time.Sleep(300 * time.Millisecond)

	enabled, err := marker.Enabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	cancel()
	assert.NoError(t, <-done)
}

func TestAgent_InitialApplyFailure(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "hostagent.yaml")
	writeConfig(t, configPath, dataDir, true)

	// A directory where the marker should be cannot be replaced by a file.
	require.NoError(t, os.MkdirAll(filepath.Join(legacy.NewMarker(dataDir).Path(), "sub"), 0700))

	a := newTestAgent(t, configPath)
	a.watch = false

	err := a.run(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.ExitMarkerError, shared.ExitCode(err))
}

func TestMetricsHandler(t *testing.T) {
	h := metricsHandler(log.Discard())

	for _, path := range []string{"/metrics", "/healthz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "hostagent_"), "expected hostagent metrics")
}

func TestRestartRequired(t *testing.T) {
	base := func() *config.Config {
		cfg := config.Default()
		cfg.System.DataDir = "/var/lib/hostagent"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*config.Config)
		want   []string
	}{
		{"unchanged", func(*config.Config) {}, nil},
		{"data dir", func(c *config.Config) { c.System.DataDir = "/srv/hostagent" }, []string{"system.data_dir"}},
		{"stop timeout", func(c *config.Config) { c.System.Controller.StopTimeout = time.Minute }, []string{"system.controller timeouts"}},
		{"metrics and log", func(c *config.Config) {
			c.Metrics.Addr = "127.0.0.1:9100"
			c.Log.Level = "debug"
		}, []string{"log", "metrics.addr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base()
			tt.modify(next)
			assert.Equal(t, tt.want, restartRequired(base(), next))
		})
	}
}
