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
Package lifecycle provides the process primitives the controller supervisor
is built from: detached spawning, liveness checks, graceful termination,
process discovery, port probing, a cross-process lock and an audit log of
lifecycle events.

# Process Spawning

Spawned processes run in their own session, so they outlive a terminal
hangup of the host agent. The returned handle is reaped in the background,
which keeps an exited controller from lingering as a zombie:

	spawner := lifecycle.NewSpawner()
	proc, err := spawner.Spawn("/opt/agent/bin/agent-ctl", []string{"daemon"}, logPath)
	if err != nil {
	    // Handle error
	}
	<-proc.Exited()

# Termination

Stop asks the process to exit, waits for the grace period and then kills
it. On Windows the first request is already forceful.

	if err := lifecycle.Stop(proc, 10*time.Second, 5*time.Second); err != nil {
	    // Process may still be running
	}

# Discovery

A controller started by an earlier host agent instance is found by its
executable path or by the port it listens on:

	d := lifecycle.NewDiscoverer()
	pids, err := d.FindByPort(50001)

On Linux discovery reads procfs. macOS uses ps and lsof. Other platforms
return ErrDiscoveryUnsupported for the lookups they cannot answer.

# Port Probing

Readiness polling uses exponential backoff:

	probe := lifecycle.NewPortProbe(50001)
	if err := probe.WaitUntilListening(ctx, 30*time.Second); err != nil {
	    // Controller did not come up
	}

# Locking

Lock serializes lifecycle transitions between host agent processes:

	lock := lifecycle.NewLock(filepath.Join(dataDir, "controller.lock"))
	if err := lock.Acquire(5 * time.Second); err != nil {
	    // Another instance is busy
	}
	defer lock.Release()

# Lifecycle Logging

All lifecycle events are appended to a JSON-lines file for audit purposes:

	events := lifecycle.NewEventLog("/path/to/lifecycle.log")
	events.LogStart(path)
	events.LogStopSuccess(pid, elapsed)
*/
package lifecycle
