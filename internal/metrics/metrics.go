// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package metrics defines the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Metrics bundles all collectors. One instance is shared across the
// HTTP layer, the engine wiring and the upstream clients.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts HTTP requests by route, method and status
	// class.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes HTTP request latency by route.
	RequestDuration *prometheus.HistogramVec

	// MatchesTotal counts matching runs by strategy and outcome.
	MatchesTotal *prometheus.CounterVec

	// MatchCandidates observes the candidate pool size per run.
	MatchCandidates prometheus.Histogram

	// CacheHits and CacheMisses count recommendation cache lookups.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// BreakerState reports each circuit breaker's state
	// (0 closed, 1 half-open, 2 open).
	BreakerState *prometheus.GaugeVec
}

// New builds the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{registry: reg}
	factory := promauto.With(reg)

	m.RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchengine",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status class.",
	}, []string{"route", "method", "status"})

	m.RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "matchengine",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	m.MatchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchengine",
		Name:      "matches_total",
		Help:      "Matching runs by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	m.MatchCandidates = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "matchengine",
		Name:      "match_candidates",
		Help:      "Candidate pool size per matching run.",
		Buckets:   []float64{0, 10, 25, 50, 100, 200},
	})

	m.CacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "matchengine",
		Name:      "recommendation_cache_hits_total",
		Help:      "Recommendation cache hits.",
	})

	m.CacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "matchengine",
		Name:      "recommendation_cache_misses_total",
		Help:      "Recommendation cache misses.",
	})

	m.BreakerState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "matchengine",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"breaker"})

	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBreaker is an upstream.StateListener recording breaker
// transitions.
func (m *Metrics) ObserveBreaker(name string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}
