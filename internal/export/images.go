/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"sync"

	_ "golang.org/x/image/webp"
)

// maxImageBytes bounds a single downloaded scene image.
const maxImageBytes = 20 << 20

// FetchImages downloads and decodes the given URLs concurrently. URLs that fail
// are logged and left out; their cards export with a placeholder.
func FetchImages(ctx context.Context, client *http.Client, urls []string, log *slog.Logger) ImageSource {
	if client == nil {
		client = http.DefaultClient
	}
	var (
		mu  sync.Mutex
		got = make(map[string]image.Image, len(urls))
		wg  sync.WaitGroup
		sem = make(chan struct{}, 4)
	)
	for _, u := range urls {
		if u == "" {
			continue
		}
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			img, err := fetchImage(ctx, client, u)
			if err != nil {
				if log != nil {
					log.Warn("scene image unavailable", slog.String("url", u), slog.Any("err", err))
				}
				return
			}
			mu.Lock()
			got[u] = img
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	return func(url string) (image.Image, bool) {
		img, ok := got[url]
		return img, ok
	}
}

func fetchImage(ctx context.Context, client *http.Client, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}
