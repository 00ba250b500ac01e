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

package config

import "gopkg.in/yaml.v3"

// Keys of the controller section, system.controller.{run,legacy}.
const (
	GroupSystem         = "system"
	KeyController       = "controller"
	KeyControllerRun    = "run"
	KeyControllerLegacy = "legacy"
)

// IsRunController reports whether the configuration enables the
// controller. A missing or unreadable value means do not run.
func IsRunController(node *yaml.Node) bool {
	return GetBool(controllerSection(node), KeyControllerRun, false)
}

// IsUseLegacyMode reports whether the configuration requests legacy pull
// mode. A missing or unreadable value means no legacy mode.
func IsUseLegacyMode(node *yaml.Node) bool {
	return GetBool(controllerSection(node), KeyControllerLegacy, false)
}

// Intent is the controller policy read from one configuration tree.
type Intent struct {
	Run    bool
	Legacy bool
}

// ReadIntent evaluates both controller predicates.
func ReadIntent(node *yaml.Node) Intent {
	return Intent{
		Run:    IsRunController(node),
		Legacy: IsUseLegacyMode(node),
	}
}

// ShouldStart resolves the two predicates: legacy mode always suppresses
// the controller.
func (i Intent) ShouldStart() bool {
	return i.Run && !i.Legacy
}

func controllerSection(node *yaml.Node) *yaml.Node {
	return GetNode(node, GroupSystem, KeyController)
}
