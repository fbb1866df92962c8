// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import "context"

// Cache stores computed recommendation lists per user and kind.
//
// Implementations must make Put an atomic replace: concurrent writers
// for the same key resolve last-writer-wins, and readers never observe
// a partially written list. Expired entries behave as absent.
type Cache interface {
	// Get returns the cached list for (userID, kind), or false when
	// absent or expired.
	Get(ctx context.Context, userID string, kind RecommendationKind) (RankedList, bool)

	// Put stores list under (userID, kind) with the implementation's
	// configured TTL, replacing any previous entry.
	Put(ctx context.Context, userID string, kind RecommendationKind, list RankedList) error

	// Invalidate removes the cached list for (userID, kind). Removing
	// an absent key is not an error.
	Invalidate(ctx context.Context, userID string, kind RecommendationKind) error
}

// noopCache satisfies Cache while caching nothing. Used when caching is
// disabled.
type noopCache struct{}

// NewNoopCache returns a Cache that never stores anything.
func NewNoopCache() Cache { return noopCache{} }

func (noopCache) Get(context.Context, string, RecommendationKind) (RankedList, bool) {
	return RankedList{}, false
}

func (noopCache) Put(context.Context, string, RecommendationKind, RankedList) error { return nil }

func (noopCache) Invalidate(context.Context, string, RecommendationKind) error { return nil }
