// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"fmt"
	"math"
	"time"
)

// StrategyName selects a scoring strategy.
type StrategyName string

// Supported scoring strategies.
const (
	// StrategyWeighted blends distance, hobby, engagement, host trust
	// and reward boost with fixed weights.
	StrategyWeighted StrategyName = "weighted"

	// StrategyEmbedding ranks by two-tower embedding similarity and
	// uses the factor scores only for explanations.
	StrategyEmbedding StrategyName = "embedding"
)

// FactorWeights are the blend weights for the weighted-factor strategy.
// They must be non-negative and sum to 1.0 within a small tolerance.
type FactorWeights struct {
	Distance    float64 `json:"distance" koanf:"distance"`
	Hobby       float64 `json:"hobby" koanf:"hobby"`
	Engagement  float64 `json:"engagement" koanf:"engagement"`
	HostTrust   float64 `json:"host_trust" koanf:"host_trust"`
	RewardBoost float64 `json:"reward_boost" koanf:"reward_boost"`
}

// DefaultFactorWeights returns the production weight set.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		Distance:    0.25,
		Hobby:       0.35,
		Engagement:  0.20,
		HostTrust:   0.10,
		RewardBoost: 0.10,
	}
}

// Sum returns the total of all weights.
func (w FactorWeights) Sum() float64 {
	return w.Distance + w.Hobby + w.Engagement + w.HostTrust + w.RewardBoost
}

// Normalize scales the weights so they sum to 1.0. A zero weight set is
// replaced with the defaults.
func (w FactorWeights) Normalize() FactorWeights {
	sum := w.Sum()
	if sum <= 0 {
		return DefaultFactorWeights()
	}
	return FactorWeights{
		Distance:    w.Distance / sum,
		Hobby:       w.Hobby / sum,
		Engagement:  w.Engagement / sum,
		HostTrust:   w.HostTrust / sum,
		RewardBoost: w.RewardBoost / sum,
	}
}

// Validate checks the weights are non-negative and sum to 1.0 within
// tolerance.
func (w FactorWeights) Validate() error {
	for name, v := range map[string]float64{
		"distance":     w.Distance,
		"hobby":        w.Hobby,
		"engagement":   w.Engagement,
		"host_trust":   w.HostTrust,
		"reward_boost": w.RewardBoost,
	} {
		if v < 0 {
			return fmt.Errorf("%w: weight %s is negative", ErrInvalidInput, name)
		}
	}
	if math.Abs(w.Sum()-1.0) > 0.001 {
		return fmt.Errorf("%w: weights sum to %.4f, want 1.0", ErrInvalidInput, w.Sum())
	}
	return nil
}

// Config holds engine configuration.
type Config struct {
	// Strategy selects the scoring strategy.
	// Default: weighted
	Strategy StrategyName `json:"strategy" koanf:"strategy"`

	// Weights are the factor blend weights for the weighted strategy.
	Weights FactorWeights `json:"weights" koanf:"weights"`

	// MaxDistanceKm is the search radius. Candidates farther than this
	// from the user are excluded, not merely penalized.
	// Default: 50
	MaxDistanceKm float64 `json:"max_distance_km" koanf:"max_distance_km"`

	// CandidatePoolSize caps the number of candidates fetched for
	// scoring. Default: 200
	CandidatePoolSize int `json:"candidate_pool_size" koanf:"candidate_pool_size"`

	// DefaultLimit is the result count when the request does not set one.
	// Default: 20
	DefaultLimit int `json:"default_limit" koanf:"default_limit"`

	// MaxLimit is the hard cap on requested result counts.
	// Default: 100
	MaxLimit int `json:"max_limit" koanf:"max_limit"`

	// EngagementWindow is the lookback for interaction counting.
	// Default: 90 days
	EngagementWindow time.Duration `json:"engagement_window" koanf:"engagement_window"`

	// EngagementSaturation is the interaction count at which the
	// engagement score reaches 1.0. Default: 50
	EngagementSaturation int `json:"engagement_saturation" koanf:"engagement_saturation"`

	// EmbeddingDim is the dimensionality of hash embeddings.
	// Default: 128
	EmbeddingDim int `json:"embedding_dim" koanf:"embedding_dim"`

	// SimilarityThreshold is the minimum embedding similarity for a
	// candidate to earn a "Matches your interests" reason under the
	// embedding strategy. Default: 0.6
	SimilarityThreshold float64 `json:"similarity_threshold" koanf:"similarity_threshold"`

	// CacheTTL is the lifetime of cached recommendation lists.
	// Default: 24h
	CacheTTL time.Duration `json:"cache_ttl" koanf:"cache_ttl"`

	// ColdStartMinHobbies is the hobby count below which, combined with
	// zero engagement, a user is treated as new. Default: 1
	ColdStartMinHobbies int `json:"cold_start_min_hobbies" koanf:"cold_start_min_hobbies"`
}

// DefaultConfig returns production-ready engine defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:             StrategyWeighted,
		Weights:              DefaultFactorWeights(),
		MaxDistanceKm:        50,
		CandidatePoolSize:    200,
		DefaultLimit:         20,
		MaxLimit:             100,
		EngagementWindow:     90 * 24 * time.Hour,
		EngagementSaturation: 50,
		EmbeddingDim:         128,
		SimilarityThreshold:  0.6,
		CacheTTL:             24 * time.Hour,
		ColdStartMinHobbies:  1,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyWeighted, StrategyEmbedding:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, c.Strategy)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.MaxDistanceKm <= 0 {
		return fmt.Errorf("%w: max_distance_km must be positive", ErrInvalidInput)
	}
	if c.CandidatePoolSize <= 0 {
		return fmt.Errorf("%w: candidate_pool_size must be positive", ErrInvalidInput)
	}
	if c.DefaultLimit <= 0 || c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("%w: default_limit must be in (0, max_limit]", ErrInvalidInput)
	}
	if c.EngagementWindow <= 0 {
		return fmt.Errorf("%w: engagement_window must be positive", ErrInvalidInput)
	}
	if c.EngagementSaturation <= 0 {
		return fmt.Errorf("%w: engagement_saturation must be positive", ErrInvalidInput)
	}
	if c.EmbeddingDim <= 0 || c.EmbeddingDim > 512 {
		return fmt.Errorf("%w: embedding_dim must be in (0, 512]", ErrInvalidInput)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [0, 1]", ErrInvalidInput)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive", ErrInvalidInput)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	// All fields are value types; a shallow copy is a deep copy.
	return c
}
