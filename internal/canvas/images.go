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
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ImageState is the load state of one image URL.
type ImageState int

const (
	ImageUnset ImageState = iota
	ImageLoading
	ImageLoaded
	ImageFailed
)

func (s ImageState) String() string {
	switch s {
	case ImageLoading:
		return "loading"
	case ImageLoaded:
		return "loaded"
	case ImageFailed:
		return "failed"
	default:
		return "unset"
	}
}

// DefaultImageTimeout moves a load that never finishes to failed.
const DefaultImageTimeout = 10 * time.Second

type imageEntry struct {
	state ImageState
	gen   int
	timer *time.Timer
}

// ImageTracker keeps the load state per image URL. Placeholders are derived from
// it at render time; scenes never store it.
type ImageTracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	entries  map[string]*imageEntry
	onChange func(url string, s ImageState)
}

func NewImageTracker(timeout time.Duration) *ImageTracker {
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	return &ImageTracker{timeout: timeout, entries: make(map[string]*imageEntry)}
}

// OnChange registers a callback run after every state change, outside the lock.
func (t *ImageTracker) OnChange(fn func(url string, s ImageState)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// State returns the state of url. The empty URL is always unset.
func (t *ImageTracker) State(url string) ImageState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[url]; ok {
		return e.state
	}
	return ImageUnset
}

// Begin marks url as loading and arms the timeout. It reports false when the URL
// is empty or already past unset.
func (t *ImageTracker) Begin(url string) bool {
	if url == "" {
		return false
	}
	t.mu.Lock()
	e, ok := t.entries[url]
	if ok && e.state != ImageUnset {
		t.mu.Unlock()
		return false
	}
	if !ok {
		e = &imageEntry{}
		t.entries[url] = e
	}
	e.state = ImageLoading
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(url, gen) })
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(url, ImageLoading)
	}
	return true
}

func (t *ImageTracker) expire(url string, gen int) {
	t.mu.Lock()
	e, ok := t.entries[url]
	if !ok || e.gen != gen || e.state != ImageLoading {
		t.mu.Unlock()
		return
	}
	e.state = ImageFailed
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(url, ImageFailed)
	}
}

// Loaded records a successful load. A load that arrives after the timeout still wins.
func (t *ImageTracker) Loaded(url string) { t.finish(url, ImageLoaded, ImageLoading, ImageFailed) }

// Failed records a failed load.
func (t *ImageTracker) Failed(url string) { t.finish(url, ImageFailed, ImageLoading) }

func (t *ImageTracker) finish(url string, to ImageState, from ...ImageState) {
	t.mu.Lock()
	e, ok := t.entries[url]
	allowed := false
	if ok {
		for _, f := range from {
			allowed = allowed || e.state == f
		}
	}
	if !allowed {
		t.mu.Unlock()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	e.state = to
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(url, to)
	}
}

// Retry forgets a failed URL so the next Begin loads it again.
func (t *ImageTracker) Retry(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[url]; ok && e.state == ImageFailed {
		delete(t.entries, url)
	}
}

// Reset stops every pending timeout and forgets all URLs.
func (t *ImageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	t.entries = make(map[string]*imageEntry)
}

// FetchFunc retrieves an image; a nil error means the image is displayable.
type FetchFunc func(ctx context.Context, url string) error

// Load begins url and runs fetch in the background, recording the outcome.
func (t *ImageTracker) Load(ctx context.Context, url string, fetch FetchFunc) {
	if !t.Begin(url) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		if err := fetch(ctx, url); err != nil {
			t.Failed(url)
			return
		}
		t.Loaded(url)
	}()
}

// maxImageBytes caps how much of an image body HTTPFetch reads.
var maxImageBytes int64 = 20 << 20

// HTTPFetch returns a FetchFunc that GETs the URL and accepts any image/* response.
func HTTPFetch(client *http.Client) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("image %s: status %d", url, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
			return fmt.Errorf("image %s: content type %q", url, ct)
		}
		n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return fmt.Errorf("image %s: %w", url, err)
		}
		if n > maxImageBytes {
			return fmt.Errorf("image %s: larger than %d bytes", url, maxImageBytes)
		}
		return nil
	}
}
