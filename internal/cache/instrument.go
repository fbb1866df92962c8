// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package cache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kumele/matchengine/internal/match"
)

// Instrumented decorates a cache with hit and miss counters.
type Instrumented struct {
	inner  match.Cache
	hits   prometheus.Counter
	misses prometheus.Counter
}

var _ match.Cache = (*Instrumented)(nil)

// NewInstrumented wraps inner so lookups increment the given counters.
func NewInstrumented(inner match.Cache, hits, misses prometheus.Counter) *Instrumented {
	return &Instrumented{inner: inner, hits: hits, misses: misses}
}

// Get implements match.Cache.
func (c *Instrumented) Get(ctx context.Context, userID string, kind match.RecommendationKind) (match.RankedList, bool) {
	list, ok := c.inner.Get(ctx, userID, kind)
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return list, ok
}

// Put implements match.Cache.
func (c *Instrumented) Put(ctx context.Context, userID string, kind match.RecommendationKind, list match.RankedList) error {
	return c.inner.Put(ctx, userID, kind, list)
}

// Invalidate implements match.Cache.
func (c *Instrumented) Invalidate(ctx context.Context, userID string, kind match.RecommendationKind) error {
	return c.inner.Invalidate(ctx, userID, kind)
}
