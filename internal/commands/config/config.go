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

// Package config implements the hostagent config commands.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/hostagent/internal/commands/shared"
	"github.com/tombee/hostagent/internal/config"
	"github.com/tombee/hostagent/internal/controller"
	"github.com/tombee/hostagent/internal/lifecycle"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		Long: `Inspect the hostagent configuration.

Subcommands:
  check - Validate the configuration and show what it asks for
  show  - Display the effective configuration
  path  - Show config file location`,
	}

	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPathCommand())

	return cmd
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and show the controller decision",
		Long: `Load and validate the configuration, then report how the controller
settings are read: whether the controller should run, whether legacy pull
mode is requested and where the controller executable is expected.

Nothing is started, stopped or written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout())
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long:  `Display the configuration as YAML after defaults and environment overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.OutOrStdout())
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPath(cmd.OutOrStdout())
		},
	}
}

type checkResponse struct {
	shared.JSONResponse
	ConfigPath       string `json:"config_path,omitempty"`
	DataDir          string `json:"data_dir"`
	ServicePath      string `json:"service_path"`
	ControllerPath   string `json:"controller_path"`
	ControllerExists bool   `json:"controller_exists"`
	Run              bool   `json:"run"`
	Legacy           bool   `json:"legacy"`
	StartController  bool   `json:"start_controller"`
}

func runCheck(out io.Writer) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	intent := config.ReadIntent(rt.Config.Tree)
	controllerPath := controller.GetController(rt.ServicePath)

	resp := checkResponse{
		JSONResponse:     shared.NewJSONResponse("config check", true),
		ConfigPath:       rt.Config.Path,
		DataDir:          rt.Config.System.DataDir,
		ServicePath:      rt.ServicePath,
		ControllerPath:   controllerPath,
		ControllerExists: lifecycle.IsExecutable(controllerPath),
		Run:              intent.Run,
		Legacy:           intent.Legacy,
		StartController:  intent.ShouldStart(),
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, resp)
	}

	source := resp.ConfigPath
	if source == "" {
		source = "(defaults, no file)"
	}
	fmt.Fprintln(out, shared.RenderOK("Configuration is valid"))
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("config:      "), source)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("data dir:    "), resp.DataDir)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("controller:  "), resp.ControllerPath)
	fmt.Fprintf(out, "%s %t\n", shared.RenderLabel("run:         "), resp.Run)
	fmt.Fprintf(out, "%s %t\n", shared.RenderLabel("legacy pull: "), resp.Legacy)

	switch {
	case resp.StartController && !resp.ControllerExists:
		fmt.Fprintln(out, shared.RenderWarn("Controller should run but no executable was found"))
	case resp.StartController:
		fmt.Fprintln(out, shared.RenderOK("Controller will be started"))
	case resp.Run && resp.Legacy:
		fmt.Fprintln(out, shared.RenderWarn("Controller will be stopped: legacy pull mode overrides run"))
	default:
		fmt.Fprintln(out, shared.RenderOK("Controller will be stopped"))
	}
	return nil
}

func runShow(out io.Writer) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(rt.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runPath(out io.Writer) error {
	cfgPath := shared.GetConfigPath()
	if cfgPath == "" {
		cfgPath = os.Getenv("HOSTAGENT_CONFIG")
	}
	if cfgPath == "" {
		var err error
		cfgPath, err = config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	_, statErr := os.Stat(cfgPath)
	exists := statErr == nil

	if shared.GetJSON() {
		return shared.EmitJSON(out, struct {
			shared.JSONResponse
			Path   string `json:"path"`
			Exists bool   `json:"exists"`
		}{shared.NewJSONResponse("config path", true), cfgPath, exists})
	}

	fmt.Fprintln(out, cfgPath)
	if !exists {
		fmt.Fprintln(out, shared.Muted.Render("(file does not exist; defaults apply)"))
	}
	return nil
}
