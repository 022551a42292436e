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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"storyboard/internal/domain"
	applog "storyboard/internal/log"
	"storyboard/internal/metrics"
)

// maxImageBytes caps downloads from the provider.
const maxImageBytes = 20 << 20

// BreakerConfig controls when the generator is cut off.
type BreakerConfig struct {
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	Timeout          time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:      5,
		FailureThreshold: 0.6,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
	}
}

// FetchFunc downloads an image and returns its bytes and content type.
type FetchFunc func(ctx context.Context, url string) ([]byte, string, error)

// Service generates an image and copies it into object storage when an Uploader is set.
type Service struct {
	gen     Generator
	up      Uploader
	fetch   FetchFunc
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	log     *slog.Logger
	newKey  func(projectID string) string
}

type Option func(*Service)

func WithUploader(u Uploader) Option           { return func(s *Service) { s.up = u } }
func WithFetch(f FetchFunc) Option             { return func(s *Service) { s.fetch = f } }
func WithMetrics(m *metrics.Metrics) Option    { return func(s *Service) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option         { return func(s *Service) { s.log = l } }
func WithBreaker(c BreakerConfig) Option       { return func(s *Service) { s.cb = newBreaker(c, s) } }
func withKeyFunc(f func(string) string) Option { return func(s *Service) { s.newKey = f } }

func NewService(gen Generator, opts ...Option) *Service {
	s := &Service{
		gen:   gen,
		fetch: HTTPFetch(&http.Client{Timeout: 60 * time.Second}),
		log:   applog.WithComponent("imagegen"),
		newKey: func(projectID string) string {
			return projectID + "/" + uuid.NewString() + ".png"
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.cb == nil {
		s.cb = newBreaker(DefaultBreakerConfig(), s)
	}
	return s
}

func newBreaker(c BreakerConfig, s *Service) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "imagegen",
		Interval: c.Interval,
		Timeout:  c.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < c.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger().Warn("circuit breaker state changed", slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
		// a caller giving up is not a provider failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (s *Service) logger() *slog.Logger {
	if s.log == nil {
		return applog.WithComponent("imagegen")
	}
	return s.log
}

// Generate returns a URL for an image of prompt. With an Uploader the image is stored
// under <projectID>/<uuid>.png; if that copy fails the provider URL is returned instead.
// An open breaker yields domain.ErrUnavailable.
func (s *Service) Generate(ctx context.Context, prompt, projectID string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.Invalid("prompt is required")
	}
	if strings.TrimSpace(projectID) == "" {
		return "", domain.Invalid("project_id is required")
	}
	l := applog.WithOperation(s.logger(), "generate").With(slog.String("project", projectID))
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.gen.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.metrics.ImageGeneration(metrics.OutcomeRejected)
			return "", domain.Unavailable("generate image", err)
		}
		s.metrics.ImageGeneration(metrics.OutcomeError)
		l.Error("image generation failed", slog.Any("err", err))
		return "", err
	}
	providerURL, _ := res.(string)
	if s.up == nil {
		s.metrics.ImageGeneration(metrics.OutcomeOK)
		return providerURL, nil
	}

	stored, err := s.store(ctx, providerURL, projectID)
	if err != nil {
		l.Warn("image upload failed, using provider url", slog.Any("err", err))
		s.metrics.ImageGeneration(metrics.OutcomeFallback)
		return providerURL, nil
	}
	s.metrics.ImageGeneration(metrics.OutcomeOK)
	return stored, nil
}

func (s *Service) store(ctx context.Context, providerURL, projectID string) (string, error) {
	data, ct, err := s.fetch(ctx, providerURL)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	if !strings.HasPrefix(ct, "image/") {
		ct = "image/png"
	}
	return s.up.Upload(ctx, s.newKey(projectID), data, ct)
}

// HTTPFetch downloads with client, rejecting non-2xx answers and oversized bodies.
func HTTPFetch(client *http.Client) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) ([]byte, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode/100 != 2 {
			return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return nil, "", err
		}
		if len(data) > maxImageBytes {
			return nil, "", errors.New("image too large")
		}
		return data, resp.Header.Get("Content-Type"), nil
	}
}
