// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHashEmbedderDeterminism(t *testing.T) {
	em := NewHashEmbedder(128)
	u := UserProfile{
		ID:      "u1",
		Hobbies: []Hobby{{Name: "hiking", Affinity: 0.9}},
		Tier:    TierSilver,
	}

	v1, err := em.EmbedUser(context.Background(), UserFeatures(u))
	if err != nil {
		t.Fatalf("EmbedUser() error: %v", err)
	}
	v2, err := em.EmbedUser(context.Background(), UserFeatures(u))
	if err != nil {
		t.Fatalf("EmbedUser() error: %v", err)
	}

	if len(v1) != 128 {
		t.Fatalf("vector length = %d, want 128", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedding not deterministic at dim %d: %f != %f", i, v1[i], v2[i])
		}
	}
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	em := NewHashEmbedder(64)
	e := EventRecord{ID: "e1", Category: "music", Tags: []string{"jazz"}}

	v, err := em.EmbedEvent(context.Background(), EventFeatures(e, nil))
	if err != nil {
		t.Fatalf("EmbedEvent() error: %v", err)
	}
	if n := v.Norm(); math.Abs(n-1.0) > 1e-9 {
		t.Errorf("norm = %f, want 1.0", n)
	}
}

func TestHashEmbedderDistinctInputsDiffer(t *testing.T) {
	em := NewHashEmbedder(128)
	a, _ := em.EmbedEvent(context.Background(), EventFeatures(EventRecord{ID: "e1", Category: "music"}, nil))
	b, _ := em.EmbedEvent(context.Background(), EventFeatures(EventRecord{ID: "e2", Category: "hiking"}, nil))

	if a.Dot(b) > 0.999 {
		t.Error("distinct categories produced near-identical embeddings")
	}
}

func TestSimilarityRange(t *testing.T) {
	em := NewHashEmbedder(128)
	u, _ := em.EmbedUser(context.Background(), UserFeatures(UserProfile{ID: "u1", Hobbies: []Hobby{{Name: "cooking", Affinity: 1}}}))
	e, _ := em.EmbedEvent(context.Background(), EventFeatures(EventRecord{ID: "e1", Category: "cooking"}, nil))

	s := Similarity(u, e)
	if s < 0 || s > 1 {
		t.Errorf("similarity = %f, want within [0, 1]", s)
	}

	// A vector against itself maps to 1.0.
	if got := Similarity(u, u); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self similarity = %f, want 1.0", got)
	}
}

func TestSimilarityLengthMismatch(t *testing.T) {
	a := Vector{1, 0, 0}
	b := Vector{0, 1}
	// Mismatched vectors dot to zero, mapping to the midpoint.
	if got := Similarity(a, b); got != 0.5 {
		t.Errorf("similarity = %f, want 0.5", got)
	}
}

// stubSource is a hand-rolled EmbeddingSource for fallback tests.
type stubSource struct {
	userVec  Vector
	eventVec Vector
	err      error
}

func (s *stubSource) UserVector(context.Context, string) (Vector, error) {
	return s.userVec, s.err
}

func (s *stubSource) EventVector(context.Context, string) (Vector, error) {
	return s.eventVec, s.err
}

func TestModelEmbedderPrefersSource(t *testing.T) {
	want := make(Vector, 128)
	want[0] = 1
	em := NewModelEmbedder(&stubSource{userVec: want}, 128)

	got, err := em.EmbedUser(context.Background(), UserFeatures(UserProfile{ID: "u1"}))
	if err != nil {
		t.Fatalf("EmbedUser() error: %v", err)
	}
	if got[0] != 1 {
		t.Error("source vector not used")
	}
}

func TestModelEmbedderFallsBack(t *testing.T) {
	em := NewModelEmbedder(&stubSource{err: errors.New("connection refused")}, 128)

	got, err := em.EmbedUser(context.Background(), UserFeatures(UserProfile{ID: "u1"}))
	if err != nil {
		t.Fatalf("EmbedUser() error: %v", err)
	}
	if len(got) != 128 {
		t.Fatalf("fallback vector length = %d, want 128", len(got))
	}
	if math.Abs(got.Norm()-1.0) > 1e-9 {
		t.Errorf("fallback norm = %f, want 1.0", got.Norm())
	}
}

func TestModelEmbedderRejectsWrongDimension(t *testing.T) {
	em := NewModelEmbedder(&stubSource{userVec: Vector{1, 2, 3}}, 128)

	got, err := em.EmbedUser(context.Background(), UserFeatures(UserProfile{ID: "u1"}))
	if err != nil {
		t.Fatalf("EmbedUser() error: %v", err)
	}
	if len(got) != 128 {
		t.Fatalf("vector length = %d, want 128 from fallback", len(got))
	}
}
