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

package shared

import (
	"io"
	"log/slog"
	"os"

	"github.com/tombee/hostagent/internal/config"
	"github.com/tombee/hostagent/internal/controller"
	"github.com/tombee/hostagent/internal/legacy"
	"github.com/tombee/hostagent/internal/log"
)

// Runtime is what a command needs to act on the controller: the loaded
// configuration, the resolved service path and a logger.
type Runtime struct {
	Config      *config.Config
	ServicePath string
	Logger      *slog.Logger
}

// LoadRuntime loads the configuration named by --config and builds the
// logger it describes. Logs go to stderr so they never mix with command
// output.
func LoadRuntime() (*Runtime, error) {
	return loadRuntime(GetConfigPath(), os.Stderr)
}

func loadRuntime(configPath string, logOutput io.Writer) (*Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}

	servicePath, err := cfg.ResolveServicePath()
	if err != nil {
		return nil, NewConfigError("failed to resolve service path", err)
	}

	return &Runtime{
		Config:      cfg,
		ServicePath: servicePath,
		Logger:      newLogger(cfg, logOutput),
	}, nil
}

// newLogger applies the configured level and format, then the
// environment, then --verbose and --quiet.
func newLogger(cfg *config.Config, output io.Writer) *slog.Logger {
	logCfg := log.FromEnv()
	if os.Getenv("LOG_LEVEL") == "" && os.Getenv("HOSTAGENT_LOG_LEVEL") == "" && os.Getenv("HOSTAGENT_DEBUG") == "" {
		logCfg.Level = cfg.Log.Level
	}
	if os.Getenv("LOG_FORMAT") == "" {
		logCfg.Format = log.Format(cfg.Log.Format)
	}
	logCfg.AddSource = logCfg.AddSource || cfg.Log.AddSource

	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "error"
	}

	logCfg.Output = output
	return log.New(logCfg)
}

// SupervisorOptions returns the supervisor options for this runtime.
func (r *Runtime) SupervisorOptions() controller.Options {
	opts := controller.OptionsFromConfig(r.Config)
	opts.ServicePath = r.ServicePath
	opts.Logger = r.Logger
	return opts
}

// Supervisor creates a supervisor for this runtime.
func (r *Runtime) Supervisor() *controller.Supervisor {
	return controller.NewSupervisor(r.SupervisorOptions())
}

// Marker returns the legacy pull marker in the data directory.
func (r *Runtime) Marker() *legacy.Marker {
	return legacy.NewMarker(r.Config.System.DataDir)
}

// Reconciler creates a reconciler driving sup.
func (r *Runtime) Reconciler(sup *controller.Supervisor) *controller.Reconciler {
	return controller.NewReconciler(r.Marker(), sup, r.ServicePath, r.Logger)
}
