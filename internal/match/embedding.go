// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// userFacetWeights blends the user-tower facets into one vector.
// Facet order matches UserFeatures.
var userFacetWeights = map[string]float64{
	"hobbies":      0.35,
	"engagement":   0.25,
	"demographics": 0.15,
	"rewards":      0.10,
	"blog":         0.10,
	"ads":          0.05,
}

// eventFacetWeights blends the event-tower facets into one vector.
// Facet order matches EventFeatures.
var eventFacetWeights = map[string]float64{
	"category":    0.30,
	"tags":        0.25,
	"host_rating": 0.20,
	"engagement":  0.15,
	"price_tier":  0.10,
}

// Vector is an embedding, L2-normalized unless all-zero.
type Vector []float64

// Dot returns the inner product of two vectors. Mismatched lengths
// yield zero.
func (v Vector) Dot(other Vector) float64 {
	if len(v) != len(other) {
		return 0
	}
	var sum float64
	for i := range v {
		sum += v[i] * other[i]
	}
	return sum
}

// Norm returns the Euclidean length.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// normalize scales v to unit length in place. A zero vector is left
// unchanged.
func (v Vector) normalize() {
	n := v.Norm()
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

// Similarity maps the dot product of two unit vectors from [-1, 1]
// onto [0, 1].
func Similarity(a, b Vector) float64 {
	s := (a.Dot(b) + 1) / 2
	return clamp01(s)
}

// clamp01 bounds x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Embedder turns feature bundles into embedding vectors.
//
// Implementations must be deterministic: the same bundle always yields
// the same vector, so cached and recomputed embeddings agree.
type Embedder interface {
	// EmbedUser embeds a user-tower feature bundle.
	EmbedUser(ctx context.Context, b FeatureBundle) (Vector, error)

	// EmbedEvent embeds an event-tower feature bundle.
	EmbedEvent(ctx context.Context, b FeatureBundle) (Vector, error)
}

// HashEmbedder is a deterministic, model-free embedder. Each facet's
// terms are joined and hashed with SHA-256; hex digits map to vector
// components in [-1, 1]. Facet vectors are blended with tower weights
// and the result is L2-normalized.
//
// The construction has no semantic knowledge, but identical term bags
// land on identical vectors and shared terms pull vectors together,
// which is enough for a stable fallback when no learned model is
// available.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing dim-sized vectors.
// A non-positive dim falls back to the default of 128.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 128
	}
	return &HashEmbedder{dim: dim}
}

// Dim returns the embedding dimensionality.
func (h *HashEmbedder) Dim() int { return h.dim }

// EmbedUser implements Embedder.
func (h *HashEmbedder) EmbedUser(_ context.Context, b FeatureBundle) (Vector, error) {
	return h.embed(b, userFacetWeights), nil
}

// EmbedEvent implements Embedder.
func (h *HashEmbedder) EmbedEvent(_ context.Context, b FeatureBundle) (Vector, error) {
	return h.embed(b, eventFacetWeights), nil
}

// embed blends per-facet hash vectors with the given weights.
func (h *HashEmbedder) embed(b FeatureBundle, weights map[string]float64) Vector {
	out := make(Vector, h.dim)
	for _, list := range b.Lists {
		w, ok := weights[list.Facet]
		if !ok || len(list.Terms) == 0 {
			continue
		}
		fv := h.hashText(strings.Join(list.Terms, " "))
		for i := range out {
			out[i] += w * fv[i]
		}
	}
	out.normalize()
	return out
}

// hashText maps text onto a unit vector via its SHA-256 hex digest.
// Component i takes hex digit i mod 64, recentered to [-1, 1].
func (h *HashEmbedder) hashText(text string) Vector {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])

	v := make(Vector, h.dim)
	for i := 0; i < h.dim; i++ {
		d := hexDigit(digest[i%len(digest)])
		v[i] = (float64(d) - 8) / 8
	}
	v.normalize()
	return v
}

// hexDigit decodes one lowercase hex character.
func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return 0
}

// ModelEmbedder wraps a learned embedding source with a HashEmbedder
// fallback. When the source fails or returns a vector of the wrong
// dimensionality, the deterministic hash embedding is used instead, so
// ranking degrades gracefully rather than erroring.
type ModelEmbedder struct {
	source   EmbeddingSource
	fallback *HashEmbedder
}

// EmbeddingSource is a remote or learned provider of embeddings, such
// as a vector store holding trained two-tower vectors.
type EmbeddingSource interface {
	// UserVector fetches a trained user embedding, or ErrNotFound.
	UserVector(ctx context.Context, userID string) (Vector, error)

	// EventVector fetches a trained event embedding, or ErrNotFound.
	EventVector(ctx context.Context, eventID string) (Vector, error)
}

// VectorSink receives locally computed tower vectors so the remote
// store can serve them later. Writes are best effort: the engine logs
// sink failures and moves on.
type VectorSink interface {
	UpsertUserVector(ctx context.Context, userID string, vec Vector) error
	UpsertEventVector(ctx context.Context, eventID string, vec Vector) error
}

// NewModelEmbedder returns a ModelEmbedder backed by source, falling
// back to hash embeddings of the given dimensionality.
func NewModelEmbedder(source EmbeddingSource, dim int) *ModelEmbedder {
	return &ModelEmbedder{
		source:   source,
		fallback: NewHashEmbedder(dim),
	}
}

// EmbedUser implements Embedder. A missing or failed source lookup
// falls back to the hash embedding.
func (m *ModelEmbedder) EmbedUser(ctx context.Context, b FeatureBundle) (Vector, error) {
	if m.source != nil {
		if v, err := m.source.UserVector(ctx, b.Subject); err == nil && len(v) == m.fallback.Dim() {
			return v, nil
		}
	}
	return m.fallback.EmbedUser(ctx, b)
}

// EmbedEvent implements Embedder.
func (m *ModelEmbedder) EmbedEvent(ctx context.Context, b FeatureBundle) (Vector, error) {
	if m.source != nil {
		if v, err := m.source.EventVector(ctx, b.Subject); err == nil && len(v) == m.fallback.Dim() {
			return v, nil
		}
	}
	return m.fallback.EmbedEvent(ctx, b)
}
