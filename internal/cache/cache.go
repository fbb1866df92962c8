// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package cache provides an in-memory TTL cache for recommendation
// lists.
//
// Entries are keyed by (user, kind) and expire after a configurable
// TTL. Writes replace atomically under a single lock, so concurrent
// writers resolve last-writer-wins and readers never see a torn entry.
// A background janitor sweeps expired entries so memory is reclaimed
// even for keys that are never read again.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kumele/matchengine/internal/logging"
	"github.com/kumele/matchengine/internal/match"
)

// Config holds cache configuration.
type Config struct {
	// TTL is the entry lifetime. Default: 24h
	TTL time.Duration `koanf:"ttl"`

	// SweepInterval is how often the janitor removes expired entries.
	// Default: 10m
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// MaxEntries caps the number of cached lists; zero means unbounded.
	// When full, writes evict the entry closest to expiry.
	MaxEntries int `koanf:"max_entries"`
}

// DefaultConfig returns production cache defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           24 * time.Hour,
		SweepInterval: 10 * time.Minute,
		MaxEntries:    100_000,
	}
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Entries   int
	Evictions uint64
}

type entry struct {
	list      match.RankedList
	expiresAt time.Time
}

type key struct {
	userID string
	kind   match.RecommendationKind
}

// Recommendations is an in-memory TTL cache of ranked lists. It
// implements match.Cache.
type Recommendations struct {
	cfg Config

	mu      sync.RWMutex
	entries map[key]entry

	hits      uint64
	misses    uint64
	evictions uint64

	stop     chan struct{}
	stopOnce sync.Once

	// now is injectable for tests.
	now func() time.Time
}

var _ match.Cache = (*Recommendations)(nil)

// New constructs a recommendation cache and starts its janitor.
// Call Stop when the cache is no longer needed.
func New(cfg Config) *Recommendations {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	c := &Recommendations{
		cfg:     cfg,
		entries: make(map[key]entry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor()
	return c
}

// Get implements match.Cache.
func (c *Recommendations) Get(_ context.Context, userID string, kind match.RecommendationKind) (match.RankedList, bool) {
	c.mu.RLock()
	e, ok := c.entries[key{userID, kind}]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return match.RankedList{}, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.list, true
}

// Put implements match.Cache. The write replaces any previous entry for
// the same key in one critical section.
func (c *Recommendations) Put(_ context.Context, userID string, kind match.RecommendationKind, list match.RankedList) error {
	k := key{userID, kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists && c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
		c.evictSoonestLocked()
	}
	c.entries[k] = entry{list: list, expiresAt: c.now().Add(c.cfg.TTL)}
	return nil
}

// Invalidate implements match.Cache. Removing an absent key is a
// no-op.
func (c *Recommendations) Invalidate(_ context.Context, userID string, kind match.RecommendationKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key{userID, kind})
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Recommendations) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Entries:   len(c.entries),
		Evictions: c.evictions,
	}
}

// Stop halts the janitor. Safe to call more than once.
func (c *Recommendations) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictSoonestLocked removes the entry closest to expiry. Caller must
// hold the write lock.
func (c *Recommendations) evictSoonestLocked() {
	var victim key
	var soonest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
			first = false
		}
	}
	if !first {
		delete(c.entries, victim)
		c.evictions++
	}
}

// janitor periodically removes expired entries.
func (c *Recommendations) janitor() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep deletes all expired entries.
func (c *Recommendations) sweep() {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("cache sweep complete")
	}
}
