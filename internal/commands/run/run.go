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

// Package run implements the long-running hostagent command.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	"github.com/tombee/hostagent/internal/config"
	"github.com/tombee/hostagent/internal/controller"
	"github.com/tombee/hostagent/internal/log"
	"github.com/tombee/hostagent/internal/tracing"
	"github.com/tombee/hostagent/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		leaveRunning bool
		noWatch      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply the configuration and keep it applied",
		Long: `Run applies the controller settings of the configuration file and then
watches the file, re-applying it whenever it changes.

Each pass writes or removes the legacy pull marker first and then starts
or stops the controller. On SIGINT or SIGTERM the controller is stopped
unless --leave-running is given.

When metrics.addr is set, Prometheus metrics are served on /metrics.
Set HOSTAGENT_TRACE=stdout to print lifecycle spans on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := shared.LoadRuntime()
			if err != nil {
				return err
			}

			version, _, _ := shared.GetVersion()
			provider, err := tracing.NewProvider(tracing.ConfigFromEnv(version))
			if err != nil {
				return shared.NewConfigError("failed to set up tracing", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					rt.Logger.Warn("failed to flush traces", log.Error(err))
				}
			}()

			a := newAgent(rt)
			a.leaveRunning = leaveRunning
			a.watch = !noWatch
			return a.run(ctx)
		},
	}

	cmd.Flags().BoolVar(&leaveRunning, "leave-running", false, "Do not stop the controller on exit")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Apply the configuration once and wait for a signal")

	return cmd
}

// agent ties the reconciler to configuration reloads.
type agent struct {
	configPath   string
	sup          *controller.Supervisor
	rec          *controller.Reconciler
	logger       *slog.Logger
	baseLogger   *slog.Logger
	metricsAddr  string
	stopWait     time.Duration
	leaveRunning bool
	watch        bool

	// watchOptions is overridden by tests.
	watchOptions watch.Options

	mu       sync.Mutex
	stopping bool
	current  *config.Config
}

func newAgent(rt *shared.Runtime) *agent {
	sup := rt.Supervisor()
	ctl := rt.Config.System.Controller
	return &agent{
		configPath:  rt.Config.Path,
		sup:         sup,
		rec:         rt.Reconciler(sup),
		logger:      log.WithComponent(rt.Logger, "agent"),
		baseLogger:  rt.Logger,
		metricsAddr: rt.Config.Metrics.Addr,
		stopWait:    ctl.StopTimeout + ctl.KillTimeout + shutdownTimeout,
		watch:       true,
		current:     rt.Config,
	}
}

// run applies the loaded configuration and keeps it applied until ctx is
// done. Every goroutine it starts has returned before the controller is
// stopped, so no reload can start a controller behind the shutdown.
func (a *agent) run(ctx context.Context) error {
	res, err := a.rec.Apply(ctx, a.current.Tree)
	if err != nil {
		return shared.NewMarkerError("failed to apply configuration", err)
	}
	a.logger.Info("configuration applied",
		"config", a.configPath,
		"legacy", res.Legacy,
		"controller_wanted", res.Wanted,
		"controller_running", res.Running)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer a.shutdown()
	defer wg.Wait()
	defer cancel()

	errCh := make(chan error, 2)

	if a.metricsAddr != "" {
		srv, ln, err := a.listenMetrics(a.metricsAddr)
		if err != nil {
			return shared.NewConfigError("failed to start metrics endpoint", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics endpoint: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if a.watch && a.configPath != "" {
		opts := a.watchOptions
		opts.Logger = a.baseLogger
		w, err := watch.New(a.configPath, opts)
		if err != nil {
			return shared.NewFailedError("failed to watch configuration", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx, a.reload); err != nil {
				errCh <- err
			}
		}()
	} else if a.watch {
		a.logger.Info("no configuration file loaded, not watching for changes")
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return shared.NewFailedError("agent stopped", err)
	}
}

// reload re-reads the configuration file and applies it. A file that
// cannot be loaded leaves the current state in place. Settings bound at
// startup are reported but not applied.
func (a *agent) reload(ctx context.Context, ev *watch.Event) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.logger.Error("failed to reload configuration, keeping current state",
			"event", ev.Op,
			log.Error(err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopping {
		a.logger.Debug("ignoring configuration change during shutdown", "event", ev.Op)
		return
	}
	if keys := restartRequired(a.current, cfg); len(keys) > 0 {
		a.logger.Warn("configuration changes take effect after a restart", "keys", keys)
	}
	a.current = cfg

	res, err := a.rec.Apply(ctx, cfg.Tree)
	if err != nil {
		a.logger.Error("failed to apply reloaded configuration", log.Error(err))
		return
	}
	a.logger.Info("configuration reloaded",
		"event", ev.Op,
		"legacy", res.Legacy,
		"controller_wanted", res.Wanted,
		"controller_running", res.Running)
}

// restartRequired lists the keys that differ between prev and next but are
// only read when the agent starts.
func restartRequired(prev, next *config.Config) []string {
	var keys []string
	add := func(changed bool, key string) {
		if changed {
			keys = append(keys, key)
		}
	}

	add(prev.System.DataDir != next.System.DataDir, "system.data_dir")
	add(prev.System.ServicePath != next.System.ServicePath, "system.service_path")
	add(prev.System.Controller != next.System.Controller, "system.controller timeouts")
	add(prev.Log != next.Log, "log")
	add(prev.Metrics != next.Metrics, "metrics.addr")
	return keys
}

func (a *agent) shutdown() {
	a.mu.Lock()
	a.stopping = true
	a.mu.Unlock()

	if a.leaveRunning {
		a.logger.Info("leaving controller running", "state", a.sup.State().String())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.stopWait)
	defer cancel()
	if !a.sup.Kill(ctx) {
		a.logger.Error("controller still running after shutdown")
	}
}

func (a *agent) listenMetrics(addr string) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return &http.Server{
		Handler:           metricsHandler(a.baseLogger),
		ReadHeaderTimeout: 5 * time.Second,
	}, ln, nil
}

func metricsHandler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return log.HTTPMiddleware(log.WithComponent(logger, "metrics"), mux)
}
