// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kumele/matchengine/internal/logging"
	"github.com/kumele/matchengine/internal/match"
	"github.com/kumele/matchengine/internal/metrics"
)

// Matcher is the engine surface the handlers depend on.
type Matcher interface {
	MatchEvents(ctx context.Context, req match.Request) (match.RankedList, error)
	RecommendEvents(ctx context.Context, userID string) (match.RankedList, error)
	RecommendHobbies(ctx context.Context, userID string) (match.RankedList, error)
	Refresh(ctx context.Context, userID string) (match.RankedList, error)
	RefreshAll(ctx context.Context) (int, error)
	Breakdown(ctx context.Context, userID, eventID string) (match.ScoredCandidate, error)
}

// Geocoder resolves addresses for location-by-address matching.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (match.Location, error)
}

// Pinger verifies a dependency is reachable, for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the engine and its dependencies into HTTP handlers.
type Server struct {
	matcher  Matcher
	geocoder Geocoder
	db       Pinger
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewServer constructs the handler set. geocoder and db may be nil;
// the address parameter and the database health probe are then
// disabled.
func NewServer(matcher Matcher, geocoder Geocoder, db Pinger, m *metrics.Metrics) *Server {
	return &Server{
		matcher:  matcher,
		geocoder: geocoder,
		db:       db,
		metrics:  m,
		validate: validator.New(),
	}
}

// matchQuery carries the parsed /match/events query parameters.
type matchQuery struct {
	UserID        string  `validate:"required"`
	Limit         int     `validate:"min=0,max=100"`
	MaxDistanceKm float64 `validate:"min=0"`
	Lat           *float64
	Lon           *float64
	Address       string
	Categories    []string
	BypassCache   bool
}

// parseMatchQuery extracts and validates query parameters.
func parseMatchQuery(r *http.Request) (matchQuery, error) {
	q := r.URL.Query()
	out := matchQuery{
		UserID:  q.Get("user_id"),
		Address: q.Get("address"),
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if out.Limit, err = strconv.Atoi(v); err != nil {
			return out, fmt.Errorf("%w: limit must be an integer", match.ErrInvalidInput)
		}
	}
	if v := q.Get("max_distance_km"); v != "" {
		if out.MaxDistanceKm, err = strconv.ParseFloat(v, 64); err != nil {
			return out, fmt.Errorf("%w: max_distance_km must be a number", match.ErrInvalidInput)
		}
	}
	if v := q.Get("lat"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return out, fmt.Errorf("%w: lat must be a number", match.ErrInvalidInput)
		}
		out.Lat = &lat
	}
	if v := q.Get("lon"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return out, fmt.Errorf("%w: lon must be a number", match.ErrInvalidInput)
		}
		out.Lon = &lon
	}
	if (out.Lat == nil) != (out.Lon == nil) {
		return out, fmt.Errorf("%w: lat and lon must be provided together", match.ErrInvalidInput)
	}
	if v := q.Get("categories"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}
	if v := q.Get("bypass_cache"); v != "" {
		if out.BypassCache, err = strconv.ParseBool(v); err != nil {
			return out, fmt.Errorf("%w: bypass_cache must be a boolean", match.ErrInvalidInput)
		}
	}
	return out, nil
}

// handleMatchEvents serves GET /api/v1/match/events.
func (s *Server) handleMatchEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseMatchQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", match.ErrInvalidInput, err))
		return
	}

	req := match.Request{
		UserID:        q.UserID,
		Limit:         q.Limit,
		MaxDistanceKm: q.MaxDistanceKm,
		Categories:    q.Categories,
		BypassCache:   q.BypassCache,
	}
	switch {
	case q.Lat != nil && q.Lon != nil:
		req.Location = &match.Location{Latitude: *q.Lat, Longitude: *q.Lon}
	case q.Address != "":
		if s.geocoder == nil {
			respondError(w, r, fmt.Errorf("%w: address lookup not configured", match.ErrInvalidInput))
			return
		}
		// A failed geocode falls back to the stored profile location;
		// matching still proceeds with neutral distance.
		loc, err := s.geocoder.Geocode(r.Context(), q.Address)
		if err != nil {
			logging.FromContext(r.Context()).Warn().
				Err(err).
				Str("address", q.Address).
				Msg("geocoding failed, falling back to profile location")
		} else {
			req.Location = &loc
		}
	}

	// A bare user_id query is served from the recommendation cache;
	// any tuning parameter forces a fresh computation.
	var (
		list match.RankedList
		err2 error
	)
	if !q.BypassCache && req.Limit == 0 && req.MaxDistanceKm == 0 &&
		req.Location == nil && q.Address == "" && len(req.Categories) == 0 {
		list, err2 = s.matcher.RecommendEvents(r.Context(), req.UserID)
	} else {
		list, err2 = s.matcher.MatchEvents(r.Context(), req)
	}
	s.observeMatch(list, err2)
	if err2 != nil {
		respondError(w, r, err2)
		return
	}
	respondJSON(w, r, http.StatusOK, list)
}

// handleRecommendEvents serves GET /api/v1/recommendations/events/{userID}.
func (s *Server) handleRecommendEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	list, err := s.matcher.RecommendEvents(r.Context(), userID)
	s.observeMatch(list, err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, list)
}

// handleRecommendHobbies serves GET /api/v1/recommendations/hobbies/{userID}.
func (s *Server) handleRecommendHobbies(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	list, err := s.matcher.RecommendHobbies(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, list)
}

// handleRefresh serves POST /api/v1/recommendations/refresh/{userID}.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	list, err := s.matcher.Refresh(r.Context(), userID)
	s.observeMatch(list, err)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, list)
}

// handleRefreshAll serves POST /api/v1/recommendations/refresh.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.matcher.RefreshAll(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]int{"refreshed": n})
}

// handleBreakdown serves GET /api/v1/match/breakdown.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	eventID := r.URL.Query().Get("event_id")
	if userID == "" || eventID == "" {
		respondError(w, r, fmt.Errorf("%w: user_id and event_id are required", match.ErrInvalidInput))
		return
	}

	sc, err := s.matcher.Breakdown(r.Context(), userID, eventID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, sc)
}

// handleHealth serves GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, r, code, map[string]any{"status": status, "checks": checks})
}

// observeMatch records match run metrics.
func (s *Server) observeMatch(list match.RankedList, err error) {
	if s.metrics == nil {
		return
	}
	strategy := list.Strategy
	if strategy == "" {
		strategy = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.MatchesTotal.WithLabelValues(strategy, outcome).Inc()
	if err == nil {
		s.metrics.MatchCandidates.Observe(float64(len(list.Candidates)))
	}
}
