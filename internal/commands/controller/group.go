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

// Package controller implements the hostagent controller commands.
package controller

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	controllerpkg "github.com/tombee/hostagent/internal/controller"
)

// NewCommand creates the controller command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "controller",
		Annotations: map[string]string{
			"group": "system",
		},
		Short: "Manage the agent controller",
		Long: `Commands for managing the agent controller process.

The controller is the agent-ctl executable installed next to hostagent. It
runs detached from this command, so it keeps running after start returns.
These commands act on the controller directly and ignore the
system.controller.run setting. Start still refuses to run while
system.controller.legacy is on, unless --force is given. Use
'hostagent run' to follow the configuration.`,
	}

	cmd.AddCommand(NewStartCommand())
	cmd.AddCommand(NewStopCommand())
	cmd.AddCommand(NewStatusCommand())

	return cmd
}

// statusResponse is the JSON output of every controller command.
type statusResponse struct {
	shared.JSONResponse
	controllerpkg.Status
	ControllerPath string `json:"controller_path"`
}

func emitStatus(out io.Writer, command string, success bool, controllerPath string, status controllerpkg.Status) error {
	if shared.GetJSON() {
		return shared.EmitJSON(out, statusResponse{
			JSONResponse:   shared.NewJSONResponse(command, success),
			Status:         status,
			ControllerPath: controllerPath,
		})
	}

	state := status.State.String()
	switch status.State {
	case controllerpkg.Running:
		state = shared.StatusOK.Render(state)
	case controllerpkg.NotRunning:
		state = shared.Muted.Render(state)
	default:
		state = shared.StatusWarn.Render(state)
	}

	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("state:     "), state)
	if status.PID > 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("pid:       "), strconv.Itoa(status.PID))
	}
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("controller:"), controllerPath)
	if status.Command != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("command:   "), status.Command)
	}
	return nil
}
