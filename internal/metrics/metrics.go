/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package metrics holds the Prometheus collectors of the server and the editor.
// Every Metrics value owns a private registry, so tests can build as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storyboard"

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
)

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	ScenesCreated      prometheus.Counter
	ConnectionsCreated prometheus.Counter
	ImageGenerations   *prometheus.CounterVec
	AutosaveWrites     *prometheus.CounterVec
	AutosavePasses     prometheus.Counter
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ScenesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_created_total",
			Help:      "Total number of scenes created",
		}),
		ConnectionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_created_total",
			Help:      "Total number of connections created",
		}),
		ImageGenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_generations_total",
			Help:      "Image generation requests by outcome",
		}, []string{"outcome"}),
		AutosaveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosave_writes_total",
			Help:      "Scene writes issued by auto-save, by outcome",
		}, []string{"outcome"}),
		AutosavePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosave_passes_total",
			Help:      "Completed auto-save passes",
		}),
	}
	m.registry.MustRegister(
		m.HTTPRequests, m.HTTPDuration,
		m.ScenesCreated, m.ConnectionsCreated,
		m.ImageGenerations, m.AutosaveWrites, m.AutosavePasses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) SceneCreated() {
	if m != nil {
		m.ScenesCreated.Inc()
	}
}

func (m *Metrics) ConnectionCreated() {
	if m != nil {
		m.ConnectionsCreated.Inc()
	}
}

// ImageGeneration counts one generation request with the given outcome.
func (m *Metrics) ImageGeneration(outcome string) {
	if m != nil {
		m.ImageGenerations.WithLabelValues(outcome).Inc()
	}
}

// AutosaveWrite counts one scene write of an auto-save pass.
func (m *Metrics) AutosaveWrite(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.AutosaveWrites.WithLabelValues(OutcomeOK).Inc()
	} else {
		m.AutosaveWrites.WithLabelValues(OutcomeError).Inc()
	}
}

// AutosavePass counts one completed pass.
func (m *Metrics) AutosavePass() {
	if m != nil {
		m.AutosavePasses.Inc()
	}
}
