// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kumele/matchengine/internal/logging"
)

// RouterConfig tunes the HTTP middleware stack.
type RouterConfig struct {
	// RateLimit is requests per minute per client IP; zero disables
	// rate limiting.
	RateLimit int

	// CORSOrigins lists allowed origins; "*" allows all.
	CORSOrigins []string
}

// Router assembles the chi router with the full middleware stack and
// all routes.
func (s *Server) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(s.metricsMiddleware)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/match", func(r chi.Router) {
			r.Get("/events", s.handleMatchEvents)
			r.Get("/breakdown", s.handleBreakdown)
		})
		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/events/{userID}", s.handleRecommendEvents)
			r.Get("/hobbies/{userID}", s.handleRecommendHobbies)
			r.Post("/refresh", s.handleRefreshAll)
			r.Post("/refresh/{userID}", s.handleRefresh)
		})
	})

	return r
}

// requestIDMiddleware attaches a correlation ID to the context and the
// response, honoring a caller-supplied X-Request-ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// requestLogger emits one structured log line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Int("bytes", ww.BytesWritten()).
			Msg("request")
	})
}

// metricsMiddleware records request counts and latency per route.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RequestsTotal.WithLabelValues(
			route, r.Method, statusClass(ww.Status())).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).
			Observe(time.Since(start).Seconds())
	})
}

// statusClass buckets a status code into 2xx/3xx/4xx/5xx.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
