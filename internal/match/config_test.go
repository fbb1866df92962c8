// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Strategy = "magic" }},
		{"zero radius", func(c *Config) { c.MaxDistanceKm = 0 }},
		{"zero pool", func(c *Config) { c.CandidatePoolSize = 0 }},
		{"limit above max", func(c *Config) { c.DefaultLimit = c.MaxLimit + 1 }},
		{"zero window", func(c *Config) { c.EngagementWindow = 0 }},
		{"zero saturation", func(c *Config) { c.EngagementSaturation = 0 }},
		{"zero dim", func(c *Config) { c.EmbeddingDim = 0 }},
		{"oversized dim", func(c *Config) { c.EmbeddingDim = 1024 }},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"negative weight", func(c *Config) { c.Weights.Hobby = -0.1 }},
		{"weights not unit sum", func(c *Config) { c.Weights.Hobby = 0.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error not classified as invalid input: %v", err)
			}
		})
	}
}

func TestFactorWeightsNormalize(t *testing.T) {
	w := FactorWeights{Distance: 2, Hobby: 2, Engagement: 2, HostTrust: 2, RewardBoost: 2}
	n := w.Normalize()
	if math.Abs(n.Sum()-1.0) > 1e-9 {
		t.Errorf("normalized sum = %f, want 1.0", n.Sum())
	}
	if math.Abs(n.Distance-0.2) > 1e-9 {
		t.Errorf("normalized distance weight = %f, want 0.2", n.Distance)
	}

	// Zero weights fall back to defaults.
	zero := FactorWeights{}.Normalize()
	if zero != DefaultFactorWeights() {
		t.Errorf("zero weights normalized to %+v, want defaults", zero)
	}
}

func TestDefaultFactorWeightsSumToOne(t *testing.T) {
	if got := DefaultFactorWeights().Sum(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("default weights sum = %f, want 1.0", got)
	}
}

func TestConfigClone(t *testing.T) {
	a := DefaultConfig()
	b := a.Clone()
	b.MaxDistanceKm = 99
	if a.MaxDistanceKm == 99 {
		t.Error("Clone shares state with original")
	}
}
