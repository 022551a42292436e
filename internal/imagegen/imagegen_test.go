/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"storyboard/internal/domain"
	applog "storyboard/internal/log"
	"storyboard/internal/metrics"
)

type fakeUploader struct {
	key  string
	data []byte
	ct   string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, data []byte, ct string) (string, error) {
	f.key, f.data, f.ct = key, data, ct
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/" + key, nil
}

func staticFetch(_ context.Context, _ string) ([]byte, string, error) {
	return []byte("png-bytes"), "image/png", nil
}

func TestPlaceholderURL(t *testing.T) {
	got := PlaceholderURL("A hero stands on a cliff at dawn, wind in hair")
	want := placeholderBase + "A+hero+stands+on+a+cliff+at+da"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	u, err := Placeholder{}.Generate(context.Background(), "short")
	if err != nil || !strings.HasSuffix(u, "text=short") {
		t.Fatalf("unexpected %q %v", u, err)
	}
}

func TestServiceStoresUploadedImage(t *testing.T) {
	up := &fakeUploader{}
	m := metrics.New()
	s := NewService(Placeholder{}, WithUploader(up), WithFetch(staticFetch), WithMetrics(m),
		withKeyFunc(func(p string) string { return p + "/fixed.png" }))

	u, err := s.Generate(context.Background(), "castle", "p1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if u != "https://cdn.example/p1/fixed.png" {
		t.Fatalf("url %q", u)
	}
	if up.key != "p1/fixed.png" || string(up.data) != "png-bytes" || up.ct != "image/png" {
		t.Fatalf("upload got key=%q ct=%q", up.key, up.ct)
	}
	if v := testutil.ToFloat64(m.ImageGenerations.WithLabelValues(metrics.OutcomeOK)); v != 1 {
		t.Fatalf("ok outcome count %v", v)
	}
}

func TestServiceFallsBackToProviderURL(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	m := metrics.New()
	s := NewService(Placeholder{}, WithUploader(up), WithFetch(staticFetch), WithMetrics(m))

	u, err := s.Generate(context.Background(), "castle", "p1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if u != PlaceholderURL("castle") {
		t.Fatalf("expected provider url, got %q", u)
	}
	if v := testutil.ToFloat64(m.ImageGenerations.WithLabelValues(metrics.OutcomeFallback)); v != 1 {
		t.Fatalf("fallback outcome count %v", v)
	}
}

func TestServiceFallsBackWhenDownloadFails(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(Placeholder{}, WithUploader(up), WithFetch(func(context.Context, string) ([]byte, string, error) {
		return nil, "", errors.New("timeout")
	}))
	u, err := s.Generate(context.Background(), "castle", "p1")
	if err != nil || u != PlaceholderURL("castle") {
		t.Fatalf("got %q %v", u, err)
	}
	if up.key != "" {
		t.Fatalf("upload should not run")
	}
}

func TestServiceRejectsBlankInput(t *testing.T) {
	var calls int32
	gen := GeneratorFunc(func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "x", nil
	})
	s := NewService(gen)
	if _, err := s.Generate(context.Background(), "   ", "p1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.Generate(context.Background(), "cat", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("generator called %d times", calls)
	}
}

func TestServiceOpensBreaker(t *testing.T) {
	var calls int32
	gen := GeneratorFunc(func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("quota exceeded")
	})
	m := metrics.New()
	s := NewService(gen, WithMetrics(m), WithBreaker(BreakerConfig{MinRequests: 2, FailureThreshold: 0.5}))

	for i := 0; i < 2; i++ {
		_, err := s.Generate(context.Background(), "cat", "p1")
		if err == nil || errors.Is(err, domain.ErrUnavailable) {
			t.Fatalf("call %d: expected provider error, got %v", i, err)
		}
	}
	_, err := s.Generate(context.Background(), "cat", "p1")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once open, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("generator should not be called while open, calls=%d", calls)
	}
	if v := testutil.ToFloat64(m.ImageGenerations.WithLabelValues(metrics.OutcomeRejected)); v != 1 {
		t.Fatalf("rejected count %v", v)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/images/generations") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[{"url":"https://img.example/a.png"}]}`)
	}))
	defer srv.Close()

	p, err := NewOpenAI("sk-test", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	u, err := p.Generate(context.Background(), "a lighthouse")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if u != "https://img.example/a.png" {
		t.Fatalf("url %q", u)
	}
	if body["model"] != "dall-e-3" || body["size"] != "1024x1024" || body["prompt"] != "a lighthouse" {
		t.Fatalf("unexpected request body %v", body)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(""); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestHTTPFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{1, 2, 3})
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fetch := HTTPFetch(srv.Client())
	data, ct, err := fetch(context.Background(), srv.URL+"/ok.png")
	if err != nil || len(data) != 3 || ct != "image/png" {
		t.Fatalf("got %v %q %v", data, ct, err)
	}
	if _, _, err := fetch(context.Background(), srv.URL+"/nope.png"); err == nil {
		t.Fatalf("expected error for 403")
	}
}

func TestServiceLogsUnderImagegenComponent(t *testing.T) {
	var buf bytes.Buffer
	applog.Init(applog.Options{Level: "debug", Format: "json", Console: &buf})
	defer applog.Init(applog.FromEnv())

	boom := errors.New("provider down")
	svc := NewService(GeneratorFunc(func(context.Context, string) (string, error) { return "", boom }))
	if _, err := svc.Generate(context.Background(), "a castle", "p1"); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	if rec["component"] != "imagegen" || rec["project"] != "p1" || rec["msg"] != "image generation failed" {
		t.Fatalf("unexpected log record: %v", rec)
	}
}
