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

// VectorStoreConfig configures the embedding vector store client.
type VectorStoreConfig struct {
	// BaseURL of the vector store.
	BaseURL string `koanf:"base_url"`

	// UserCollection holds trained user-tower vectors.
	// Default: users
	UserCollection string `koanf:"user_collection"`

	// EventCollection holds trained event-tower vectors.
	// Default: events
	EventCollection string `koanf:"event_collection"`

	// APIKey authenticates requests when set.
	APIKey string `koanf:"api_key"`

	// Timeout for point lookups. Default: 5s
	Timeout time.Duration `koanf:"timeout"`

	// Breaker tunes the circuit breaker.
	Breaker BreakerConfig `koanf:"breaker"`
}

// DefaultVectorStoreConfig returns production vector store defaults.
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		UserCollection:  "users",
		EventCollection: "events",
		Timeout:         5 * time.Second,
		Breaker:         DefaultBreakerConfig(),
	}
}

// VectorStore fetches trained two-tower embeddings by point ID. It
// implements match.EmbeddingSource; lookups that fail fall back to hash
// embeddings inside the engine.
type VectorStore struct {
	cfg    VectorStoreConfig
	client *httpClient
}

var (
	_ match.EmbeddingSource = (*VectorStore)(nil)
	_ match.VectorSink      = (*VectorStore)(nil)
)

// NewVectorStore constructs a vector store client.
func NewVectorStore(cfg VectorStoreConfig, onChange StateListener) *VectorStore {
	if cfg.UserCollection == "" {
		cfg.UserCollection = DefaultVectorStoreConfig().UserCollection
	}
	if cfg.EventCollection == "" {
		cfg.EventCollection = DefaultVectorStoreConfig().EventCollection
	}
	return &VectorStore{
		cfg:    cfg,
		client: newHTTPClient("vector_store", cfg.Timeout, cfg.Breaker, onChange),
	}
}

// pointResponse is the vector store's point lookup envelope.
type pointResponse struct {
	Result struct {
		ID     string    `json:"id"`
		Vector []float64 `json:"vector"`
	} `json:"result"`
}

// UserVector implements match.EmbeddingSource.
func (v *VectorStore) UserVector(ctx context.Context, userID string) (match.Vector, error) {
	return v.point(ctx, v.cfg.UserCollection, userID)
}

// EventVector implements match.EmbeddingSource.
func (v *VectorStore) EventVector(ctx context.Context, eventID string) (match.Vector, error) {
	return v.point(ctx, v.cfg.EventCollection, eventID)
}

// UpsertUserVector implements match.VectorSink.
func (v *VectorStore) UpsertUserVector(ctx context.Context, userID string, vec match.Vector) error {
	return v.upsert(ctx, v.cfg.UserCollection, userID, vec)
}

// UpsertEventVector implements match.VectorSink.
func (v *VectorStore) UpsertEventVector(ctx context.Context, eventID string, vec match.Vector) error {
	return v.upsert(ctx, v.cfg.EventCollection, eventID, vec)
}

// upsertRequest is the vector store's batch point write payload.
type upsertRequest struct {
	Points []upsertPoint `json:"points"`
}

type upsertPoint struct {
	ID     string    `json:"id"`
	Vector []float64 `json:"vector"`
}

// upsert writes one point's vector into a collection.
func (v *VectorStore) upsert(ctx context.Context, collection, id string, vec match.Vector) error {
	if id == "" || len(vec) == 0 {
		return fmt.Errorf("%w: empty point id or vector", match.ErrInvalidInput)
	}
	if v.cfg.BaseURL == "" {
		return fmt.Errorf("%w: vector store not configured", match.ErrUpstreamUnavailable)
	}

	payload, err := json.Marshal(upsertRequest{
		Points: []upsertPoint{{ID: id, Vector: vec}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", match.ErrInvalidInput, err)
	}

	endpoint := v.cfg.BaseURL + "/collections/" + url.PathEscape(collection) + "/points"
	headers := map[string]string{}
	if v.cfg.APIKey != "" {
		headers["api-key"] = v.cfg.APIKey
	}
	_, err = v.client.put(ctx, endpoint, headers, payload)
	return err
}

// point fetches a single point's vector from a collection.
func (v *VectorStore) point(ctx context.Context, collection, id string) (match.Vector, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty point id", match.ErrInvalidInput)
	}
	if v.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: vector store not configured", match.ErrUpstreamUnavailable)
	}

	endpoint := v.cfg.BaseURL + "/collections/" + url.PathEscape(collection) + "/points/" + url.PathEscape(id)
	headers := map[string]string{}
	if v.cfg.APIKey != "" {
		headers["api-key"] = v.cfg.APIKey
	}

	body, err := v.client.get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}

	var resp pointResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: vector store returned malformed response: %v", match.ErrUpstreamUnavailable, err)
	}
	if len(resp.Result.Vector) == 0 {
		return nil, fmt.Errorf("%w: point %s has no vector", match.ErrNotFound, id)
	}
	return match.Vector(resp.Result.Vector), nil
}
