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
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	controllerpkg "github.com/tombee/hostagent/internal/controller"
	hosterrors "github.com/tombee/hostagent/pkg/errors"
)

// NewStopCommand creates the controller stop command.
func NewStopCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the agent controller",
		Long: `Stop the agent controller.

The controller is asked to exit and killed if it is still running after the
stop timeout. On Windows the controller is always terminated forcefully.

The controller is found even when another hostagent process started it, by
its executable path or by the process listening on port 50001.

The stop command is idempotent: if no controller is running, it exits
successfully.`,
		Example: `  # Stop the controller
  hostagent controller stop

  # Allow 30s for a graceful exit before killing
  hostagent controller stop --timeout 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), cmd.OutOrStdout(), timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Graceful exit timeout before killing (default: system.controller.stop_timeout)")

	return cmd
}

func runStop(ctx context.Context, out io.Writer, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	opts := rt.SupervisorOptions()
	if timeout > 0 {
		opts.StopTimeout = timeout
	}
	sup := controllerpkg.NewSupervisor(opts)
	controllerPath := controllerpkg.GetController(rt.ServicePath)

	if !sup.Kill(ctx) {
		return shared.NewStillRunningError("controller still running", &hosterrors.TimeoutError{
			Operation: "controller stop",
			Duration:  opts.StopTimeout + opts.KillTimeout,
		})
	}

	if !shared.GetJSON() {
		fmt.Fprintln(out, shared.RenderOK("Controller stopped"))
	}
	return emitStatus(out, "controller stop", true, controllerPath, sup.Status())
}
