// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/kumele/matchengine/internal/match"
)

// GeocoderConfig configures the Nominatim client.
type GeocoderConfig struct {
	// BaseURL of the Nominatim instance.
	// Default: https://nominatim.openstreetmap.org
	BaseURL string `koanf:"base_url"`

	// UserAgent identifies this service, required by Nominatim's usage
	// policy.
	UserAgent string `koanf:"user_agent"`

	// Timeout for geocoding requests. Default: 10s
	Timeout time.Duration `koanf:"timeout"`

	// Breaker tunes the circuit breaker.
	Breaker BreakerConfig `koanf:"breaker"`
}

// DefaultGeocoderConfig returns production geocoder defaults.
func DefaultGeocoderConfig() GeocoderConfig {
	return GeocoderConfig{
		BaseURL:   "https://nominatim.openstreetmap.org",
		UserAgent: "matchengine/1.0",
		Timeout:   10 * time.Second,
		Breaker:   DefaultBreakerConfig(),
	}
}

// Geocoder resolves free-form addresses to coordinates via Nominatim.
type Geocoder struct {
	cfg    GeocoderConfig
	client *httpClient
}

// NewGeocoder constructs a Nominatim client.
func NewGeocoder(cfg GeocoderConfig, onChange StateListener) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeocoderConfig().BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultGeocoderConfig().UserAgent
	}
	return &Geocoder{
		cfg:    cfg,
		client: newHTTPClient("geocoder", cfg.Timeout, cfg.Breaker, onChange),
	}
}

// nominatimResult is one entry of Nominatim's search response.
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to a location. An unknown address yields
// ErrNotFound.
func (g *Geocoder) Geocode(ctx context.Context, address string) (match.Location, error) {
	if address == "" {
		return match.Location{}, fmt.Errorf("%w: empty address", match.ErrInvalidInput)
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	endpoint := g.cfg.BaseURL + "/search?" + q.Encode()

	body, err := g.client.get(ctx, endpoint, map[string]string{"User-Agent": g.cfg.UserAgent})
	if err != nil {
		return match.Location{}, err
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return match.Location{}, fmt.Errorf("%w: geocoder returned malformed response: %v", match.ErrUpstreamUnavailable, err)
	}
	if len(results) == 0 {
		return match.Location{}, fmt.Errorf("%w: address %q", match.ErrNotFound, address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return match.Location{}, fmt.Errorf("%w: bad latitude %q", match.ErrUpstreamUnavailable, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return match.Location{}, fmt.Errorf("%w: bad longitude %q", match.ErrUpstreamUnavailable, results[0].Lon)
	}

	loc := match.Location{Latitude: lat, Longitude: lon}
	if !loc.Valid() {
		return match.Location{}, fmt.Errorf("%w: coordinates out of range", match.ErrUpstreamUnavailable)
	}
	return loc, nil
}
