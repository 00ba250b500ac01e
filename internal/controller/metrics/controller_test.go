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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStart(t *testing.T) {
	tests := []struct {
		name    string
		outcome string
	}{
		{name: "spawned", outcome: OutcomeSpawned},
		{name: "attached", outcome: OutcomeAttached},
		{name: "missing executable", outcome: OutcomeMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initialCount := testutil.ToFloat64(controllerStarts.With(prometheus.Labels{"outcome": tt.outcome}))

			RecordStart(tt.outcome)

			newCount := testutil.ToFloat64(controllerStarts.With(prometheus.Labels{"outcome": tt.outcome}))
			if newCount != initialCount+1 {
				t.Errorf("expected count to increment by 1, got initial=%f, new=%f", initialCount, newCount)
			}
		})
	}
}

func TestRecordStop(t *testing.T) {
	initialStopped := testutil.ToFloat64(controllerStops.WithLabelValues(OutcomeStopped))
	initialNotFound := testutil.ToFloat64(controllerStops.WithLabelValues(OutcomeNotFound))

	RecordStop(OutcomeStopped, 250*time.Millisecond)
	RecordStop(OutcomeNotFound, 0)

	if got := testutil.ToFloat64(controllerStops.WithLabelValues(OutcomeStopped)); got != initialStopped+1 {
		t.Errorf("stopped count = %f, want %f", got, initialStopped+1)
	}
	if got := testutil.ToFloat64(controllerStops.WithLabelValues(OutcomeNotFound)); got != initialNotFound+1 {
		t.Errorf("not_found count = %f, want %f", got, initialNotFound+1)
	}
}

func TestSetState(t *testing.T) {
	states := []string{"not_running", "starting", "running", "stopping"}

	SetState("running", states)

	for _, s := range states {
		want := 0.0
		if s == "running" {
			want = 1
		}
		if got := testutil.ToFloat64(controllerState.WithLabelValues(s)); got != want {
			t.Errorf("state %q = %f, want %f", s, got, want)
		}
	}

	SetState("not_running", states)
	if got := testutil.ToFloat64(controllerState.WithLabelValues("running")); got != 0 {
		t.Errorf("previous state still set: %f", got)
	}
}

func TestSetLegacyMode(t *testing.T) {
	SetLegacyMode(true)
	if got := testutil.ToFloat64(legacyMode); got != 1 {
		t.Errorf("legacy gauge = %f, want 1", got)
	}

	SetLegacyMode(false)
	if got := testutil.ToFloat64(legacyMode); got != 0 {
		t.Errorf("legacy gauge = %f, want 0", got)
	}
}

func TestRecordReconcile_MultipleIncrements(t *testing.T) {
	initialCount := testutil.ToFloat64(reconciles.WithLabelValues(ResultOK))

	for i := 0; i < 5; i++ {
		RecordReconcile(ResultOK)
	}

	newCount := testutil.ToFloat64(reconciles.WithLabelValues(ResultOK))
	if newCount != initialCount+5 {
		t.Errorf("expected count to increment by 5, got initial=%f, new=%f", initialCount, newCount)
	}
}
