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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/hostagent/internal/log"
)

func spanAttr(span tracetest.SpanStub, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestSupervisor_Spans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	s := NewSupervisor(Options{
		ServicePath: filepath.Join(t.TempDir(), "hostagent"),
		Port:        freePort(t),
		Logger:      log.Discard(),
	})

	assert.True(t, s.Kill(context.Background()))
	assert.False(t, s.Start(context.Background(), filepath.Join(t.TempDir(), "hostagent")))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "controller.kill", spans[0].Name)
	assert.Equal(t, "not_found", spanAttr(spans[0], "hostagent.controller.outcome").AsString())
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	assert.Equal(t, "controller.start", spans[1].Name)
	assert.Equal(t, "missing", spanAttr(spans[1], "hostagent.controller.outcome").AsString())
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	require.Len(t, spans[1].Events, 1, "the error is recorded on the span")
}
