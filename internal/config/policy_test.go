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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseTree(t *testing.T, doc string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &node))
	return &node
}

func TestControllerPolicy(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantRun    bool
		wantLegacy bool
	}{
		{
			name:       "yes yes",
			doc:        "system:\n  controller:\n    run: yes\n    legacy: yes\n",
			wantRun:    true,
			wantLegacy: true,
		},
		{
			name:       "native booleans",
			doc:        "system:\n  controller:\n    run: true\n    legacy: false\n",
			wantRun:    true,
			wantLegacy: false,
		},
		{
			name: "empty system defaults",
			doc:  "system:\n",
		},
		{
			name: "no system group",
			doc:  "global:\n  enabled: yes\n",
		},
		{
			name: "controller is not a map",
			doc:  "system:\n  controller: yes\n",
		},
		{
			name: "null values",
			doc:  "system:\n  controller:\n    run:\n    legacy: ~\n",
		},
		{
			name: "unrecognized scalar falls back",
			doc:  "system:\n  controller:\n    run: maybe\n    legacy: [yes]\n",
		},
		{
			name:       "mixed case and on/off",
			doc:        "system:\n  controller:\n    run: On\n    legacy: OFF\n",
			wantRun:    true,
			wantLegacy: false,
		},
		{
			name:       "anchors are followed",
			doc:        "defaults: &ctl\n  run: yes\n  legacy: yes\nsystem:\n  controller: *ctl\n",
			wantRun:    true,
			wantLegacy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := parseTree(t, tt.doc)
			assert.Equal(t, tt.wantRun, IsRunController(node))
			assert.Equal(t, tt.wantLegacy, IsUseLegacyMode(node))
		})
	}
}

func TestControllerPolicy_NilTree(t *testing.T) {
	assert.False(t, IsRunController(nil))
	assert.False(t, IsUseLegacyMode(nil))
	assert.False(t, IsRunController(&yaml.Node{}))
}

func TestControllerPolicy_DoesNotMutate(t *testing.T) {
	node := parseTree(t, "system:\n  controller:\n    run: yes\n")
	before, err := yaml.Marshal(node)
	require.NoError(t, err)

	IsRunController(node)
	IsUseLegacyMode(node)

	after, err := yaml.Marshal(node)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestIntent(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantStart bool
	}{
		{name: "run only", doc: "system:\n  controller:\n    run: yes\n    legacy: no\n", wantStart: true},
		{name: "legacy suppresses run", doc: "system:\n  controller:\n    run: yes\n    legacy: yes\n", wantStart: false},
		{name: "legacy only", doc: "system:\n  controller:\n    legacy: yes\n", wantStart: false},
		{name: "nothing", doc: "system:\n", wantStart: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := ReadIntent(parseTree(t, tt.doc))
			assert.Equal(t, tt.wantStart, intent.ShouldStart())
		})
	}
}

func TestGetNode(t *testing.T) {
	node := parseTree(t, "a:\n  b:\n    c: value\n")

	got := GetNode(node, "a", "b", "c")
	require.NotNil(t, got)
	assert.Equal(t, "value", got.Value)

	assert.Nil(t, GetNode(node, "a", "missing"))
	assert.Nil(t, GetNode(node, "a", "b", "c", "d"))
	assert.Equal(t, yaml.MappingNode, GetNode(node).Kind)
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "YES", "y", "on", "1", " yes "} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "No", "n", "off", "0"} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	for _, s := range []string{"", "maybe", "2", "enabled"} {
		_, ok := ParseBool(s)
		assert.False(t, ok, s)
	}
}
