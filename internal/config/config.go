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

// Package config loads the host agent configuration file.
//
// The file is decoded twice: into the typed Config for the settings the
// host agent itself needs (directories, timeouts, logging), and kept as a
// raw *yaml.Node tree for the controller policy, which queries named
// fields without owning their schema.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	hosterrors "github.com/tombee/hostagent/pkg/errors"
)

// Config is the host agent configuration.
type Config struct {
	System  SystemConfig  `yaml:"system"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Tree is the parsed document. Nil when no file was loaded.
	Tree *yaml.Node `yaml:"-"`

	// Path is the file the configuration was read from.
	Path string `yaml:"-"`
}

// SystemConfig holds the system group of the configuration file.
type SystemConfig struct {
	// DataDir is the user-writable directory shared with the controller.
	// The legacy pull marker, the lifecycle log and the lock file live here.
	DataDir string `yaml:"data_dir"`

	// ServicePath is the installed location of the host agent binary.
	// Empty means the running executable.
	ServicePath string `yaml:"service_path"`

	Controller ControllerConfig `yaml:"controller"`
}

// ControllerConfig holds controller supervision settings. The run and
// legacy switches of the same section are read by IsRunController and
// IsUseLegacyMode.
type ControllerConfig struct {
	// StopTimeout is the grace period after the termination request.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// KillTimeout bounds the wait after the forceful kill.
	KillTimeout time.Duration `yaml:"kill_timeout"`

	// ReadyTimeout, when positive, makes start wait for the controller port.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// LockTimeout bounds acquisition of the cross-process lifecycle lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint of the run command.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			DataDir: DataDir(),
			Controller: ControllerConfig{
				StopTimeout:  10 * time.Second,
				KillTimeout:  5 * time.Second,
				ReadyTimeout: 0,
				LockTimeout:  5 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and the environment.
// Environment variables take precedence over the file.
//
// An empty configPath falls back to HOSTAGENT_CONFIG and then to the
// default location; a missing file at the default location is not an
// error. A missing file that was asked for explicitly is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv("HOSTAGENT_CONFIG")
	}
	explicit := configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			configPath = p
		}
	}

	if configPath != "" {
		err := cfg.loadFromFile(configPath)
		if err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)) {
			return nil, &hosterrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a configuration document without consulting the
// environment or the filesystem.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.parse(data); err != nil {
		return nil, &hosterrors.ConfigError{Reason: "invalid YAML", Cause: err}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ResolveServicePath returns the configured service path, or the running
// executable when none is configured.
func (c *Config) ResolveServicePath() (string, error) {
	if c.System.ServicePath != "" {
		return c.System.ServicePath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to determine service path: %w", err)
	}
	return exe, nil
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := c.parse(data); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	c.Path = path
	return nil
}

func (c *Config) parse(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}

	// An empty document leaves the node zero-valued.
	if root.Kind == 0 {
		return nil
	}

	if err := root.Decode(c); err != nil {
		return err
	}
	c.Tree = &root
	return nil
}

// applyDefaults fills in zero values so partial files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.System.DataDir == "" {
		c.System.DataDir = defaults.System.DataDir
	}
	if c.System.Controller.StopTimeout == 0 {
		c.System.Controller.StopTimeout = defaults.System.Controller.StopTimeout
	}
	if c.System.Controller.KillTimeout == 0 {
		c.System.Controller.KillTimeout = defaults.System.Controller.KillTimeout
	}
	if c.System.Controller.LockTimeout == 0 {
		c.System.Controller.LockTimeout = defaults.System.Controller.LockTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("HOSTAGENT_DATA_DIR"); val != "" {
		c.System.DataDir = val
	}
	if val := os.Getenv("HOSTAGENT_SERVICE_PATH"); val != "" {
		c.System.ServicePath = val
	}
	if val := os.Getenv("HOSTAGENT_STOP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.System.Controller.StopTimeout = d
		}
	}
	if val := os.Getenv("HOSTAGENT_READY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.System.Controller.ReadyTimeout = d
		}
	}
	if val := os.Getenv("HOSTAGENT_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}

	// HOSTAGENT_LOG_LEVEL takes precedence over LOG_LEVEL
	if val := os.Getenv("HOSTAGENT_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if os.Getenv("LOG_SOURCE") == "1" {
		c.Log.AddSource = true
	}
}
