// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package upstream holds HTTP clients for the external services the
// engine depends on: the Nominatim geocoder, the host trust service
// and the vector store serving trained embeddings.
//
// Every client runs its calls through a circuit breaker so a struggling
// dependency is cut off quickly instead of tying up request goroutines.
// Breaker trips degrade matching quality (neutral trust, hash-embedding
// fallback) rather than failing requests.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kumele/matchengine/internal/logging"
	"github.com/kumele/matchengine/internal/match"
)

// BreakerConfig tunes a client's circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open. Default: 3
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets the failure counts while closed. Default: 60s
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open. Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// ConsecutiveFailures trips the breaker. Default: 5
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`
}

// DefaultBreakerConfig returns production breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// StateListener observes breaker state transitions, typically for
// metrics.
type StateListener func(name string, from, to gobreaker.State)

// newBreaker builds a byte-payload circuit breaker with state-change
// logging.
func newBreaker(name string, cfg BreakerConfig, onChange StateListener) *gobreaker.CircuitBreaker[[]byte] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultBreakerConfig().MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBreakerConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a valid answer, not a service failure.
			return err == nil || errors.Is(err, match.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	})
}

// httpClient wraps a breaker-protected HTTP GET with error
// classification.
type httpClient struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	name    string
}

func newHTTPClient(name string, timeout time.Duration, bcfg BreakerConfig, onChange StateListener) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker(name, bcfg, onChange),
		name:    name,
	}
}

// get performs a breaker-protected GET and returns the response body.
// Headers are optional.
func (c *httpClient) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, headers, nil)
}

// put performs a breaker-protected PUT with a JSON payload.
func (c *httpClient) put(ctx context.Context, url string, headers map[string]string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPut, url, headers, payload)
}

func (c *httpClient) do(ctx context.Context, method, url string, headers map[string]string, payload []byte) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", match.ErrInvalidInput, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", match.ErrUpstreamUnavailable, c.name, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, match.ErrNotFound
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s returned %d", match.ErrUpstreamUnavailable, c.name, resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: %s returned %d", match.ErrInvalidInput, c.name, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", match.ErrUpstreamUnavailable, c.name, err)
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s circuit open", match.ErrUpstreamUnavailable, c.name)
		}
		return nil, err
	}
	return body, nil
}
