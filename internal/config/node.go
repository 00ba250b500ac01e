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

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// GetNode walks mapping keys starting at node and returns the value node
// at the end of path. Document and alias nodes are followed. Returns nil
// if any step is missing or is not a mapping.
func GetNode(node *yaml.Node, path ...string) *yaml.Node {
	cur := deref(node)
	for _, key := range path {
		cur = lookup(cur, key)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// GetBool returns the boolean scalar stored under key in the mapping node,
// or def when the key is missing or its value is not a boolean.
func GetBool(node *yaml.Node, key string, def bool) bool {
	value := GetNode(node, key)
	if value == nil || value.Kind != yaml.ScalarNode {
		return def
	}
	b, ok := ParseBool(value.Value)
	if !ok {
		return def
	}
	return b
}

// ParseBool parses a YAML 1.1 style boolean. The agent configuration has
// always used yes/no, which YAML 1.2 treats as plain strings.
func ParseBool(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "on", "1":
		return true, true
	case "false", "no", "n", "off", "0":
		return false, true
	default:
		return false, false
	}
}

func lookup(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return deref(node.Content[i+1])
		}
	}
	return nil
}

func deref(node *yaml.Node) *yaml.Node {
	for node != nil {
		switch node.Kind {
		case yaml.DocumentNode:
			if len(node.Content) == 0 {
				return nil
			}
			node = node.Content[0]
		case yaml.AliasNode:
			node = node.Alias
		default:
			return node
		}
	}
	return nil
}
