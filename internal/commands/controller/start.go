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

package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	"github.com/tombee/hostagent/internal/config"
	controllerpkg "github.com/tombee/hostagent/internal/controller"
	"github.com/tombee/hostagent/internal/lifecycle"
)

// errLegacyMode is returned by start while the configuration asks for
// legacy pull mode.
var errLegacyMode = errors.New("system.controller.legacy is enabled in the configuration")

// NewStartCommand creates the controller start command.
func NewStartCommand() *cobra.Command {
	var (
		wait  time.Duration
		force bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the agent controller",
		Long: `Start the agent controller in the background.

The start command is idempotent: if a controller for this installation is
already running, it is reported and no second instance is started.

With --wait the command also waits until the controller accepts
connections on its port.

Legacy pull mode suppresses the controller. While the configuration
enables it, start refuses to run unless --force is given.`,
		Example: `  # Start the controller
  hostagent controller start

  # Start and wait up to 30s for the controller port
  hostagent controller start --wait 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), cmd.OutOrStdout(), wait, force)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait for the controller port to accept connections")
	cmd.Flags().BoolVar(&force, "force", false, "Start even though legacy pull mode is configured")

	return cmd
}

func runStart(ctx context.Context, out io.Writer, wait time.Duration, force bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	if config.IsUseLegacyMode(rt.Config.Tree) {
		if !force {
			return shared.NewFailedError("controller not started", fmt.Errorf("%w; disable legacy pull mode or use --force", errLegacyMode))
		}
		rt.Logger.Warn("starting controller although legacy pull mode is configured")
	}

	opts := rt.SupervisorOptions()
	if wait > 0 {
		opts.ReadyTimeout = wait
	}
	sup := controllerpkg.NewSupervisor(opts)
	controllerPath := controllerpkg.GetController(rt.ServicePath)

	if !sup.Start(ctx, rt.ServicePath) {
		if !lifecycle.IsExecutable(controllerPath) {
			return shared.NewControllerMissingError("controller not started",
				fmt.Errorf("%w: %s", controllerpkg.ErrControllerMissing, controllerPath))
		}
		return shared.NewFailedError("controller not started", fmt.Errorf("see the logs in %s", filepath.Join(rt.Config.System.DataDir, "log")))
	}

	if !shared.GetJSON() {
		fmt.Fprintln(out, shared.RenderOK("Controller running"))
	}
	return emitStatus(out, "controller start", true, controllerPath, sup.Status())
}
