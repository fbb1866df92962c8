// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package api exposes the matching engine over HTTP with chi.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/kumele/matchengine/internal/logging"
	"github.com/kumele/matchengine/internal/match"
)

// APIResponse is the uniform JSON envelope for every endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// RequestID echoes the request correlation ID for support.
	RequestID string `json:"request_id,omitempty"`
}

// respondJSON writes a success envelope.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{
		Success:   true,
		Data:      data,
		RequestID: logging.RequestID(r.Context()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

// respondError writes an error envelope, mapping engine sentinel errors
// to status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		logging.FromContext(r.Context()).Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{
		Success:   false,
		Error:     publicMessage(err, status),
		RequestID: logging.RequestID(r.Context()),
	}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		logging.FromContext(r.Context()).Error().Err(encErr).Msg("failed to encode error response")
	}
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, match.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal detail out of 5xx responses.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	if status == http.StatusServiceUnavailable {
		return "a dependency is temporarily unavailable"
	}
	return err.Error()
}
