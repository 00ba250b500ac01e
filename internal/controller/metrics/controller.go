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

// Package metrics exposes Prometheus metrics for the controller lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Start outcomes.
const (
	OutcomeSpawned        = "spawned"
	OutcomeAttached       = "attached"
	OutcomeAlreadyRunning = "already_running"
	OutcomeMissing        = "missing"
	OutcomeFailed         = "failed"
)

// Stop outcomes.
const (
	OutcomeStopped  = "stopped"
	OutcomeNotFound = "not_found"
)

// Reconcile results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	controllerStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostagent_controller_starts_total",
			Help: "Total controller start requests by outcome",
		},
		[]string{"outcome"},
	)

	controllerStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostagent_controller_stops_total",
			Help: "Total controller stop requests by outcome",
		},
		[]string{"outcome"},
	)

	controllerStopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostagent_controller_stop_duration_seconds",
			Help:    "Time from termination request to confirmed exit",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)

	controllerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostagent_controller_state",
			Help: "Current supervisor state; the active state reports 1",
		},
		[]string{"state"},
	)

	legacyMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostagent_legacy_pull_enabled",
			Help: "Whether the legacy pull marker is present (1) or absent (0)",
		},
	)

	reconciles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostagent_controller_reconciles_total",
			Help: "Total configuration applications by result",
		},
		[]string{"result"},
	)
)

// RecordStart increments the start counter for outcome.
func RecordStart(outcome string) {
	controllerStarts.WithLabelValues(outcome).Inc()
}

// RecordStop increments the stop counter for outcome. The duration is
// observed only for stopped controllers.
func RecordStop(outcome string, d time.Duration) {
	controllerStops.WithLabelValues(outcome).Inc()
	if outcome == OutcomeStopped {
		controllerStopDuration.Observe(d.Seconds())
	}
}

// SetState marks state as the current one among states.
func SetState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		controllerState.WithLabelValues(s).Set(v)
	}
}

// SetLegacyMode records the legacy pull marker state.
func SetLegacyMode(enabled bool) {
	if enabled {
		legacyMode.Set(1)
		return
	}
	legacyMode.Set(0)
}

// RecordReconcile increments the reconcile counter for result.
func RecordReconcile(result string) {
	reconciles.WithLabelValues(result).Inc()
}
