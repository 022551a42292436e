/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestImageTrackerTransitions(t *testing.T) {
	tr := NewImageTracker(time.Minute)
	if tr.Begin("") {
		t.Fatalf("empty url must not begin")
	}
	if tr.State("u") != ImageUnset {
		t.Fatalf("unknown url must be unset")
	}
	if !tr.Begin("u") || tr.State("u") != ImageLoading {
		t.Fatalf("begin must move to loading")
	}
	if tr.Begin("u") {
		t.Fatalf("second begin must be ignored")
	}
	tr.Loaded("u")
	if tr.State("u") != ImageLoaded {
		t.Fatalf("expected loaded")
	}
	tr.Failed("u")
	if tr.State("u") != ImageLoaded {
		t.Fatalf("failed after loaded must be ignored")
	}
	tr.Reset()
	if tr.State("u") != ImageUnset {
		t.Fatalf("reset must forget urls")
	}
}

func TestImageTrackerTimeout(t *testing.T) {
	tr := NewImageTracker(20 * time.Millisecond)
	var mu sync.Mutex
	var seen []ImageState
	tr.OnChange(func(_ string, s ImageState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	tr.Begin("slow")
	waitFor(t, func() bool { return tr.State("slow") == ImageFailed })

	tr.Loaded("slow")
	if tr.State("slow") != ImageLoaded {
		t.Fatalf("a late load should still be shown")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != ImageLoading || seen[1] != ImageFailed || seen[2] != ImageLoaded {
		t.Fatalf("unexpected transitions: %v", seen)
	}
}

func TestImageTrackerRetry(t *testing.T) {
	tr := NewImageTracker(time.Minute)
	tr.Begin("u")
	tr.Failed("u")
	if tr.Begin("u") {
		t.Fatalf("failed url must not reload without Retry")
	}
	tr.Retry("u")
	if !tr.Begin("u") {
		t.Fatalf("retry should allow a new load")
	}
}

func TestLoadWithHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tr := NewImageTracker(time.Second)
	fetch := HTTPFetch(srv.Client())
	ctx := context.Background()
	tr.Load(ctx, srv.URL+"/ok.png", fetch)
	tr.Load(ctx, srv.URL+"/missing.png", fetch)
	tr.Load(ctx, srv.URL+"/html", fetch)

	waitFor(t, func() bool { return tr.State(srv.URL+"/ok.png") == ImageLoaded })
	waitFor(t, func() bool { return tr.State(srv.URL+"/missing.png") == ImageFailed })
	waitFor(t, func() bool { return tr.State(srv.URL+"/html") == ImageFailed })
}

func TestHTTPFetchRejectsOversizedBody(t *testing.T) {
	prev := maxImageBytes
	maxImageBytes = 8
	defer func() { maxImageBytes = prev }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if r.URL.Path == "/big.png" {
			_, _ = w.Write(make([]byte, 64))
			return
		}
		_, _ = w.Write(make([]byte, 8))
	}))
	defer srv.Close()

	fetch := HTTPFetch(srv.Client())
	ctx := context.Background()
	if err := fetch(ctx, srv.URL+"/big.png"); err == nil {
		t.Fatalf("expected oversized body to fail")
	}
	if err := fetch(ctx, srv.URL+"/small.png"); err != nil {
		t.Fatalf("body at the limit should load: %v", err)
	}
}
