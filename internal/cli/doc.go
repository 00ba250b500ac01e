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

/*
Package cli provides the root command of the hostagent CLI.

This package creates the Cobra root command and handles global concerns like
version information, persistent flags and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	hostagent
	├── run           Apply the configuration and keep it applied
	├── controller    start, stop and status of the controller
	├── legacy        enable, disable and status of legacy pull mode
	├── config        check the configuration
	└── version       Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable debug logging
	--quiet, -q      Only log errors
	--json           Output in JSON format
	--config         Path to config file

Every command first checks that the compiled controller contract matches
the shared contract definition and refuses to run on drift.
*/
package cli
