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

package log

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddleware_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	handlerCalled := false
	handler := HTTPMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !handlerCalled {
		t.Errorf("expected handler to be called")
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body to pass through, got: %q", rec.Body.String())
	}

	logEntry := decode(t, strings.TrimSpace(buf.String()))

	if logEntry["event"] != "http_request" {
		t.Errorf("expected event to be http_request, got: %v", logEntry["event"])
	}
	if logEntry["path"] != "/metrics" {
		t.Errorf("expected path to be /metrics, got: %v", logEntry["path"])
	}
	if logEntry["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got: %v", logEntry["status"])
	}
	if logEntry["level"] != "DEBUG" {
		t.Errorf("expected DEBUG level, got: %v", logEntry["level"])
	}
	if _, ok := logEntry["duration_ms"]; !ok {
		t.Errorf("expected duration_ms to be present")
	}
}

func TestHTTPMiddleware_ServerError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	handler := HTTPMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	logEntry := decode(t, strings.TrimSpace(buf.String()))

	if logEntry["level"] != "ERROR" {
		t.Errorf("expected ERROR level, got: %v", logEntry["level"])
	}
	if logEntry["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("expected status 500, got: %v", logEntry["status"])
	}
}

func TestHTTPMiddleware_DebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	handler := HTTPMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got: %s", buf.String())
	}
}
