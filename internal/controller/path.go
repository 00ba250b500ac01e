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
	"runtime"
	"strings"

	"github.com/tombee/hostagent/internal/contract"
)

// GetController returns the controller executable installed next to the
// service binary at servicePath. The derivation is lexical; nothing is
// checked on disk. It returns "" when servicePath does not name a file.
func GetController(servicePath string) string {
	return controllerPath(servicePath, runtime.GOOS)
}

// ControllerName returns the controller file name for goos.
func ControllerName(goos string) string {
	if goos == "windows" {
		return contract.ControllerBinary + ".exe"
	}
	return contract.ControllerBinary
}

func controllerPath(servicePath, goos string) string {
	if servicePath == "" {
		return ""
	}

	seps := "/"
	if goos == "windows" {
		seps = `/\`
	}

	i := strings.LastIndexAny(servicePath, seps)
	if i < 0 && goos == "windows" && len(servicePath) >= 2 && servicePath[1] == ':' {
		// Drive-relative such as "C:agent.exe"
		i = 1
	}
	base := servicePath[i+1:]
	if base == "" || base == "." || base == ".." {
		return ""
	}

	return servicePath[:i+1] + ControllerName(goos)
}
