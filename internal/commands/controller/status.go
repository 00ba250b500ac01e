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
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/hostagent/internal/commands/shared"
	controllerpkg "github.com/tombee/hostagent/internal/controller"
)

// NewStatusCommand creates the controller status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the controller is running",
		Long: `Report whether a controller for this installation is running, with its
process ID. The process table is inspected; nothing is started or stopped.`,
		Example: `  # Show controller status
  hostagent controller status

  # Extract the controller PID
  hostagent controller status --json | jq -r '.pid'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
}

func runStatus(out io.Writer) error {
	rt, err := shared.LoadRuntime()
	if err != nil {
		return err
	}

	status := rt.Supervisor().Status()
	return emitStatus(out, "controller status", true, controllerpkg.GetController(rt.ServicePath), status)
}
