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
Package controller supervises the agent controller, the subordinate
process that serves monitoring data on a well-known local port.

# Path Resolution

The controller ships next to the host agent binary:

	path := controller.GetController("/opt/hostagent/bin/hostagent")
	// "/opt/hostagent/bin/agent-ctl"

# Supervision

A Supervisor moves the controller through NotRunning, Starting, Running
and Stopping. Start and Kill report success as a bool; neither stops the
host agent on failure.

	sup := controller.NewSupervisor(controller.Options{DataDir: dataDir})
	if !sup.Start(ctx, servicePath) {
	    // Continue without a controller
	}
	defer sup.Kill(ctx)

A supervisor that did not start the controller itself, for example after a
host agent restart, finds it by executable path or by the process
listening on the controller port.

# Reconciling Configuration

A Reconciler applies the two configuration switches in order: the legacy
pull marker first, then start or kill. Legacy mode always suppresses the
controller.

	r := controller.NewReconciler(legacy.NewMarker(dataDir), sup, servicePath, logger)
	result, err := r.Apply(ctx, cfg.Tree)
*/
package controller
