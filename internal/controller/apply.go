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
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/tombee/hostagent/internal/config"
	"github.com/tombee/hostagent/internal/controller/metrics"
	"github.com/tombee/hostagent/internal/legacy"
	"github.com/tombee/hostagent/internal/lifecycle"
	"github.com/tombee/hostagent/internal/log"
)

// Result is the outcome of one reconcile pass.
type Result struct {
	Legacy  bool `json:"legacy"`
	Wanted  bool `json:"wanted"`
	Running bool `json:"running"`
}

// Reconciler brings the legacy marker and the controller process in line
// with a configuration tree.
type Reconciler struct {
	marker      *legacy.Marker
	sup         *Supervisor
	servicePath string
	events      *lifecycle.EventLog
	logger      *slog.Logger
}

// NewReconciler creates a reconciler that starts the controller found
// next to servicePath.
func NewReconciler(marker *legacy.Marker, sup *Supervisor, servicePath string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		marker:      marker,
		sup:         sup,
		servicePath: servicePath,
		events:      sup.opts.Events,
		logger:      log.WithComponent(logger, "reconciler"),
	}
}

// Apply writes the legacy marker first, so a controller started
// afterwards already sees the right mode, and then starts or kills the
// controller. When the marker cannot be written the controller is left
// untouched and the error is returned.
func (r *Reconciler) Apply(ctx context.Context, node *yaml.Node) (Result, error) {
	intent := config.ReadIntent(node)
	res := Result{Legacy: intent.Legacy, Wanted: intent.ShouldStart()}

	before, _ := r.marker.Enabled()
	if err := r.marker.Enable(intent.Legacy); err != nil {
		r.logger.Error("failed to update legacy pull marker", "legacy", intent.Legacy, log.Error(err))
		r.events.LogLegacyMode(intent.Legacy, err)
		metrics.RecordReconcile(metrics.ResultError)
		return res, fmt.Errorf("failed to apply legacy mode: %w", err)
	}
	if before != intent.Legacy {
		r.logger.Info("legacy pull mode changed", "legacy", intent.Legacy, "marker", r.marker.Path())
		r.events.LogLegacyMode(intent.Legacy, nil)
	}
	metrics.SetLegacyMode(intent.Legacy)

	if res.Wanted {
		res.Running = r.sup.Start(ctx, r.servicePath)
	} else {
		res.Running = !r.sup.Kill(ctx)
	}

	r.logger.Debug("configuration applied",
		"run", intent.Run,
		"legacy", intent.Legacy,
		"running", res.Running)

	if res.Running != res.Wanted {
		metrics.RecordReconcile(metrics.ResultError)
		return res, nil
	}
	metrics.RecordReconcile(metrics.ResultOK)
	return res, nil
}
