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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	"github.com/tombee/hostagent/internal/contract"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for hostagent
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostagent",
		Short: "hostagent - controller lifecycle for the host monitoring agent",
		Long: `hostagent decides whether the agent controller should run, starts and
supervises it, stops it cleanly and toggles legacy pull mode.

The controller is started from the directory of the hostagent binary and
listens on the loopback port 50001. Legacy pull mode is signalled to the
controller through the allow-legacy-pull file in the data directory.

Run 'hostagent run' to apply the configuration and keep it applied.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := contract.Verify(); err != nil {
				return shared.NewFailedError("controller contract check failed", err)
			}
			return nil
		},
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/hostagent/hostagent.yaml)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.CompletionOptions.DisableDefaultCmd = true

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
