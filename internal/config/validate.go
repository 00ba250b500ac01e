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
	"errors"
	"fmt"
	"net"
	"path/filepath"

	hosterrors "github.com/tombee/hostagent/pkg/errors"
)

// Validate checks the configuration for values the host agent cannot use.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.System.DataDir == "" {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.data_dir", Reason: "must not be empty"})
	} else if !filepath.IsAbs(c.System.DataDir) {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.data_dir", Reason: fmt.Sprintf("must be an absolute path, got %q", c.System.DataDir)})
	}

	if c.System.ServicePath != "" && !filepath.IsAbs(c.System.ServicePath) {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.service_path", Reason: fmt.Sprintf("must be an absolute path, got %q", c.System.ServicePath)})
	}

	ctl := c.System.Controller
	if ctl.StopTimeout <= 0 {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.controller.stop_timeout", Reason: "must be positive"})
	}
	if ctl.KillTimeout <= 0 {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.controller.kill_timeout", Reason: "must be positive"})
	}
	if ctl.ReadyTimeout < 0 {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.controller.ready_timeout", Reason: "must not be negative"})
	}
	if ctl.LockTimeout <= 0 {
		errs = append(errs, &hosterrors.ConfigError{Key: "system.controller.lock_timeout", Reason: "must be positive"})
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, &hosterrors.ConfigError{Key: "log.format", Reason: fmt.Sprintf("unsupported format %q (use json or text)", c.Log.Format)})
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, &hosterrors.ConfigError{Key: "metrics.addr", Reason: "invalid listen address", Cause: err})
		}
	}

	return errors.Join(errs...)
}
