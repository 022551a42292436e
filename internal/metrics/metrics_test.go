/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersAndHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/api/projects/", http.StatusOK, 15*time.Millisecond)
	m.SceneCreated()
	m.ConnectionCreated()
	m.ImageGeneration(OutcomeFallback)
	m.AutosaveWrite(true)
	m.AutosaveWrite(false)
	m.AutosavePass()

	if got := testutil.ToFloat64(m.ScenesCreated); got != 1 {
		t.Fatalf("scenes created = %v", got)
	}
	if got := testutil.ToFloat64(m.AutosaveWrites.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("autosave errors = %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/projects/", "200")); got != 1 {
		t.Fatalf("http requests = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "storyboard_image_generations_total{outcome=\"fallback\"} 1") {
		t.Fatalf("metrics output missing generation counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SceneCreated()
	m.AutosaveWrite(true)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil handler status = %d", rec.Code)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.SceneCreated()
	if testutil.ToFloat64(b.ScenesCreated) != 0 {
		t.Fatalf("registries must not share collectors")
	}
}
