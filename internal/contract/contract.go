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

// Package contract holds the values the host agent and the controller
// must agree on without sharing a build: the loopback port, the legacy
// pull marker name and the controller executable name.
//
// The constants below are mirrored in contract.yaml, which the controller
// build embeds as well. Verify compares the two at startup so a drift is
// reported instead of silently breaking the handshake.
package contract

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Version is the contract revision. Bump it together with contract.yaml.
	Version = 1

	// Port is the loopback port the controller listens on.
	Port uint16 = 50001

	// LegacyPullFile is the marker file name in the controller's data
	// directory. Its presence allows legacy pull mode.
	LegacyPullFile = "allow-legacy-pull"

	// ControllerBinary is the controller executable name without the
	// platform suffix.
	ControllerBinary = "agent-ctl"
)

// ControllerArgs are the arguments the controller is started with.
var ControllerArgs = []string{"daemon"}

// ErrDrift is returned by Verify when a constant no longer matches the
// shared definition.
var ErrDrift = errors.New("contract drift")

//go:embed contract.yaml
var sharedDefinition []byte

// Definition is the decoded form of contract.yaml.
type Definition struct {
	Version          int      `yaml:"version"`
	Port             uint16   `yaml:"port"`
	LegacyPullFile   string   `yaml:"legacy_pull_file"`
	ControllerBinary string   `yaml:"controller_binary"`
	ControllerArgs   []string `yaml:"controller_args"`
}

// Shared decodes the embedded shared definition.
func Shared() (*Definition, error) {
	return parse(sharedDefinition)
}

func parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse contract definition: %w", err)
	}
	return &def, nil
}

// Verify checks the compiled constants against the shared definition.
func Verify() error {
	def, err := Shared()
	if err != nil {
		return err
	}
	return def.check()
}

func (d *Definition) check() error {
	var drifted []string
	if d.Version != Version {
		drifted = append(drifted, fmt.Sprintf("version: shared %d, compiled %d", d.Version, Version))
	}
	if d.Port != Port {
		drifted = append(drifted, fmt.Sprintf("port: shared %d, compiled %d", d.Port, Port))
	}
	if d.LegacyPullFile != LegacyPullFile {
		drifted = append(drifted, fmt.Sprintf("legacy_pull_file: shared %q, compiled %q", d.LegacyPullFile, LegacyPullFile))
	}
	if d.ControllerBinary != ControllerBinary {
		drifted = append(drifted, fmt.Sprintf("controller_binary: shared %q, compiled %q", d.ControllerBinary, ControllerBinary))
	}
	if !slices.Equal(d.ControllerArgs, ControllerArgs) {
		drifted = append(drifted, fmt.Sprintf("controller_args: shared %v, compiled %v", d.ControllerArgs, ControllerArgs))
	}

	if len(drifted) > 0 {
		return fmt.Errorf("%w: %s", ErrDrift, strings.Join(drifted, "; "))
	}
	return nil
}
