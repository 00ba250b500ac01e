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

// Package legacy implements the hostagent legacy commands.
package legacy

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	"github.com/tombee/hostagent/internal/lifecycle"
	"github.com/tombee/hostagent/internal/log"
)

// NewCommand creates the legacy command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Manage legacy pull mode",
		Long: `Commands for the legacy pull marker.

While the allow-legacy-pull file exists in the data directory, the
controller allows legacy pull mode. These commands change only the marker;
'hostagent run' also stops the controller while legacy mode is configured.`,
		Annotations: map[string]string{
			"group": "system",
		},
	}

	cmd.AddCommand(newSetCommand("enable", true))
	cmd.AddCommand(newSetCommand("disable", false))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether legacy pull mode is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	})

	return cmd
}

func newSetCommand(use string, enable bool) *cobra.Command {
	short := "Create the legacy pull marker"
	if !enable {
		short = "Remove the legacy pull marker"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd.OutOrStdout(), enable)
		},
	}
}

type legacyResponse struct {
	shared.JSONResponse
	Enabled bool   `json:"enabled"`
	Marker  string `json:"marker"`
}

func runSet(out io.Writer, enable bool) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	marker := rt.Marker()
	events := lifecycle.NewEventLog(filepath.Join(rt.Config.System.DataDir, "log", "lifecycle.log"))

	err = marker.Enable(enable)
	if logErr := events.LogLegacyMode(enable, err); logErr != nil {
		rt.Logger.Warn("failed to write lifecycle log", log.Error(logErr))
	}
	if err != nil {
		verb := "enable"
		if !enable {
			verb = "disable"
		}
		return shared.NewMarkerError("failed to "+verb+" legacy pull mode", err)
	}
	rt.Logger.Info("legacy pull mode set", "legacy", enable, "marker", marker.Path())

	command := "legacy enable"
	msg := "Legacy pull mode enabled"
	if !enable {
		command = "legacy disable"
		msg = "Legacy pull mode disabled"
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, legacyResponse{
			JSONResponse: shared.NewJSONResponse(command, true),
			Enabled:      enable,
			Marker:       marker.Path(),
		})
	}
	fmt.Fprintln(out, shared.RenderOK(msg))
	return nil
}

func runStatus(out io.Writer) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	marker := rt.Marker()
	enabled, err := marker.Enabled()
	if err != nil {
		return shared.NewMarkerError("failed to read legacy pull marker", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, legacyResponse{
			JSONResponse: shared.NewJSONResponse("legacy status", true),
			Enabled:      enabled,
			Marker:       marker.Path(),
		})
	}

	state := shared.Muted.Render("disabled")
	if enabled {
		state = shared.StatusWarn.Render("enabled")
	}
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("legacy pull:"), state)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("marker:     "), marker.Path())
	return nil
}
