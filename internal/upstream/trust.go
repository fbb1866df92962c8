// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package upstream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/kumele/matchengine/internal/match"
)

// TrustConfig configures the host trust client.
type TrustConfig struct {
	// BaseURL of the trust service.
	BaseURL string `koanf:"base_url"`

	// Timeout for trust lookups. Default: 5s
	Timeout time.Duration `koanf:"timeout"`

	// Breaker tunes the circuit breaker.
	Breaker BreakerConfig `koanf:"breaker"`
}

// DefaultTrustConfig returns production trust client defaults.
func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		Timeout: 5 * time.Second,
		Breaker: DefaultBreakerConfig(),
	}
}

// TrustClient fetches host reputation from the trust service. It
// implements match.TrustProvider.
type TrustClient struct {
	cfg    TrustConfig
	client *httpClient
}

var _ match.TrustProvider = (*TrustClient)(nil)

// NewTrustClient constructs a trust service client.
func NewTrustClient(cfg TrustConfig, onChange StateListener) *TrustClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTrustConfig().Timeout
	}
	return &TrustClient{
		cfg:    cfg,
		client: newHTTPClient("host_trust", cfg.Timeout, cfg.Breaker, onChange),
	}
}

// HostTrust implements match.TrustProvider. Unrated hosts yield
// ErrNotFound; callers treat that as neutral.
func (t *TrustClient) HostTrust(ctx context.Context, hostID string) (*match.HostTrustScore, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: empty host id", match.ErrInvalidInput)
	}
	if t.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: trust service not configured", match.ErrUpstreamUnavailable)
	}

	endpoint := t.cfg.BaseURL + "/api/v1/hosts/" + url.PathEscape(hostID) + "/trust"
	body, err := t.client.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var score match.HostTrustScore
	if err := json.Unmarshal(body, &score); err != nil {
		return nil, fmt.Errorf("%w: trust service returned malformed response: %v", match.ErrUpstreamUnavailable, err)
	}
	if score.Rating < 0 || score.Rating > 5 {
		return nil, fmt.Errorf("%w: rating %.2f out of range", match.ErrUpstreamUnavailable, score.Rating)
	}
	score.HostID = hostID
	return &score, nil
}
