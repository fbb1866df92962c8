// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumele/matchengine/internal/logging"
)

// tieEpsilon is the score difference below which two candidates are
// considered tied and ordered by ascending event ID instead.
const tieEpsilon = 1e-9

// CandidateFilter restricts the candidate pool fetched from storage.
type CandidateFilter struct {
	// Categories limits candidates to the given categories when
	// non-empty.
	Categories []string

	// Limit caps the pool size.
	Limit int

	// Now excludes events that already started.
	Now time.Time
}

// DataProvider supplies users and candidate events from storage.
type DataProvider interface {
	// User fetches a profile, or ErrNotFound.
	User(ctx context.Context, userID string) (UserProfile, error)

	// CandidateEvents returns active, upcoming events matching the
	// filter, ordered by start time.
	CandidateEvents(ctx context.Context, f CandidateFilter) ([]EventRecord, error)

	// Event fetches a single event, or ErrNotFound.
	Event(ctx context.Context, eventID string) (EventRecord, error)

	// UserIDs lists all known user IDs, for bulk refresh.
	UserIDs(ctx context.Context) ([]string, error)
}

// TrustProvider supplies host reputation scores.
type TrustProvider interface {
	// HostTrust returns the trust score for a host, or ErrNotFound for
	// unrated hosts.
	HostTrust(ctx context.Context, hostID string) (*HostTrustScore, error)
}

// Engine ranks candidate events for users.
//
// The pipeline is: load profile, fetch a bounded candidate pool, apply
// the radius cutoff, score each surviving candidate with the configured
// strategy, sort with deterministic tie-breaking and truncate to the
// requested limit. Results for parameterless calls are cached per user
// and kind.
type Engine struct {
	cfg      Config
	provider DataProvider
	trust    TrustProvider
	embedder Embedder
	sink     VectorSink
	cache    Cache
	strategy Strategy
	log      zerolog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithTrustProvider wires a host trust source. Without one, host trust
// scores stay neutral.
func WithTrustProvider(p TrustProvider) Option {
	return func(e *Engine) { e.trust = p }
}

// WithEmbedder overrides the default hash embedder.
func WithEmbedder(em Embedder) Option {
	return func(e *Engine) { e.embedder = em }
}

// WithVectorSink wires a destination for locally computed tower
// vectors. Upserts are best effort and never fail a request.
func WithVectorSink(s VectorSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithCache wires a recommendation cache. Without one, every call
// recomputes.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock overrides the engine's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an engine. The configuration must already be
// validated.
func NewEngine(cfg Config, provider DataProvider, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		provider: provider,
		embedder: NewHashEmbedder(cfg.EmbeddingDim),
		cache:    NewNoopCache(),
		log:      logging.With().Str("component", "match").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	switch cfg.Strategy {
	case StrategyEmbedding:
		st := NewEmbeddingDominantStrategy(cfg)
		st.weighted.now = e.now
		e.strategy = st
	default:
		st := NewWeightedFactorStrategy(cfg)
		st.now = e.now
		e.strategy = st
	}
	return e
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config { return e.cfg.Clone() }

// MatchEvents ranks events for the request's user with full parameter
// control. Parameterized calls bypass the cache.
func (e *Engine) MatchEvents(ctx context.Context, req Request) (RankedList, error) {
	return e.rank(ctx, req)
}

// RecommendEvents returns the cached event recommendations for a user,
// computing and caching them on a miss.
func (e *Engine) RecommendEvents(ctx context.Context, userID string) (RankedList, error) {
	if userID == "" {
		return RankedList{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if list, ok := e.cache.Get(ctx, userID, KindEvents); ok {
		e.log.Debug().Str("user_id", userID).Msg("recommendation cache hit")
		return list, nil
	}

	list, err := e.rank(ctx, Request{UserID: userID})
	if err != nil {
		return RankedList{}, err
	}
	if err := e.cache.Put(ctx, userID, KindEvents, list); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache recommendations")
	}
	return list, nil
}

// RecommendHobbies suggests hobbies for a user: their own interests
// ranked by affinity, topped up from the default list. New users get
// the default list outright.
func (e *Engine) RecommendHobbies(ctx context.Context, userID string) (RankedList, error) {
	if userID == "" {
		return RankedList{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if list, ok := e.cache.Get(ctx, userID, KindHobbies); ok {
		return list, nil
	}

	user, err := e.provider.User(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		user = UserProfile{ID: userID}
	} else if err != nil {
		return RankedList{}, err
	}

	list := RankedList{
		UserID:      userID,
		Kind:        KindHobbies,
		Strategy:    e.strategy.Name(),
		GeneratedAt: e.now(),
	}

	hobbies := make([]Hobby, len(user.Hobbies))
	copy(hobbies, user.Hobbies)
	sort.SliceStable(hobbies, func(i, j int) bool {
		return hobbies[i].Affinity > hobbies[j].Affinity
	})
	for i := range hobbies {
		hobbies[i].Reason = "Based on your interests"
	}

	seen := make(map[string]bool, len(hobbies))
	for _, h := range hobbies {
		seen[normalizeTerm(h.Name)] = true
	}
	for _, h := range DefaultHobbies() {
		if len(hobbies) >= e.cfg.DefaultLimit {
			break
		}
		if !seen[normalizeTerm(h.Name)] {
			h.Reason = "Popular with the community"
			hobbies = append(hobbies, h)
		}
	}

	list.Hobbies = hobbies
	list.IsNewUser = e.isColdStart(user)

	if err := e.cache.Put(ctx, userID, KindHobbies, list); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache hobby recommendations")
	}
	return list, nil
}

// Refresh invalidates a user's cached recommendations, recomputes both
// kinds, and returns the fresh event list.
func (e *Engine) Refresh(ctx context.Context, userID string) (RankedList, error) {
	if userID == "" {
		return RankedList{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	for _, kind := range []RecommendationKind{KindEvents, KindHobbies} {
		if err := e.cache.Invalidate(ctx, userID, kind); err != nil {
			e.log.Warn().Err(err).Str("user_id", userID).Str("kind", string(kind)).Msg("cache invalidation failed")
		}
	}

	list, err := e.rank(ctx, Request{UserID: userID})
	if err != nil {
		return RankedList{}, err
	}
	if err := e.cache.Put(ctx, userID, KindEvents, list); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache recommendations")
	}
	if _, err := e.RecommendHobbies(ctx, userID); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("hobby refresh failed")
	}
	return list, nil
}

// refreshWorkers bounds the goroutines a bulk refresh runs at once.
const refreshWorkers = 4

// RefreshAll recomputes recommendations for every known user through a
// bounded worker pool. Errors on individual users are logged and
// skipped; the returned count is the number of users refreshed
// successfully.
func (e *Engine) RefreshAll(ctx context.Context) (int, error) {
	ids, err := e.provider.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	var (
		wg        sync.WaitGroup
		refreshed atomic.Int64
	)
	work := make(chan string)
	for i := 0; i < refreshWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if ctx.Err() != nil {
					continue
				}
				if _, err := e.Refresh(ctx, id); err != nil {
					e.log.Warn().Err(err).Str("user_id", id).Msg("refresh failed for user")
					continue
				}
				refreshed.Add(1)
			}
		}()
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		work <- id
	}
	close(work)
	wg.Wait()

	n := int(refreshed.Load())
	e.log.Info().Int("refreshed", n).Int("total", len(ids)).Msg("bulk refresh complete")
	if err := ctx.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// Breakdown scores a single user-event pair and returns the itemized
// factor scores. Useful for debugging and support tooling.
func (e *Engine) Breakdown(ctx context.Context, userID, eventID string) (ScoredCandidate, error) {
	if userID == "" || eventID == "" {
		return ScoredCandidate{}, fmt.Errorf("%w: user id and event id required", ErrInvalidInput)
	}
	user, err := e.provider.User(ctx, userID)
	if err != nil {
		return ScoredCandidate{}, err
	}
	event, err := e.provider.Event(ctx, eventID)
	if err != nil {
		return ScoredCandidate{}, err
	}

	c := candidateContext{
		user:       user,
		event:      event,
		trust:      e.hostTrust(ctx, event.HostID),
		distanceKm: distanceBetween(user.Location, event.Location),
	}
	if err := e.attachVectors(ctx, &c, user); err != nil {
		return ScoredCandidate{}, err
	}
	return e.strategy.Score(ctx, c)
}

// validateRequest applies defaults and bounds to a request in place.
func (e *Engine) validateRequest(req *Request) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if req.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}
	if req.Limit == 0 {
		req.Limit = e.cfg.DefaultLimit
	}
	if req.Limit > e.cfg.MaxLimit {
		req.Limit = e.cfg.MaxLimit
	}
	if req.MaxDistanceKm < 0 {
		return fmt.Errorf("%w: max_distance_km must not be negative", ErrInvalidInput)
	}
	if req.MaxDistanceKm == 0 {
		req.MaxDistanceKm = e.cfg.MaxDistanceKm
	}
	if req.Location != nil && !req.Location.Valid() {
		return fmt.Errorf("%w: location out of range", ErrInvalidInput)
	}
	return nil
}

// rank runs the full matching pipeline for a validated request.
func (e *Engine) rank(ctx context.Context, req Request) (RankedList, error) {
	if err := e.validateRequest(&req); err != nil {
		return RankedList{}, err
	}

	user, err := e.provider.User(ctx, req.UserID)
	if errors.Is(err, ErrNotFound) {
		// An unknown user still gets recommendations: an empty profile
		// flows through the cold-start path instead of failing.
		user = UserProfile{ID: req.UserID}
	} else if err != nil {
		return RankedList{}, err
	}

	origin := user.Location
	if req.Location != nil {
		origin = req.Location
	}

	candidates, err := e.provider.CandidateEvents(ctx, CandidateFilter{
		Categories: req.Categories,
		Limit:      e.cfg.CandidatePoolSize,
		Now:        e.now(),
	})
	if err != nil {
		return RankedList{}, err
	}

	list := RankedList{
		UserID:      req.UserID,
		Kind:        KindEvents,
		Strategy:    e.strategy.Name(),
		GeneratedAt: e.now(),
	}

	if e.isColdStart(user) {
		list.IsNewUser = true
		list.Strategy = "cold_start"
		list.Candidates = e.coldStartRank(candidates, origin, req)
		return list, nil
	}

	scored, err := e.scoreCandidates(ctx, user, candidates, origin, req)
	if err != nil {
		return RankedList{}, err
	}

	sortCandidates(scored)
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	list.Candidates = scored
	return list, nil
}

// scoreCandidates applies the radius cutoff and scores the survivors.
// A scoring failure on one candidate skips that candidate only.
func (e *Engine) scoreCandidates(ctx context.Context, user UserProfile, candidates []EventRecord, origin *Location, req Request) ([]ScoredCandidate, error) {
	userVec, err := e.userVector(ctx, user)
	if err != nil {
		return nil, err
	}

	trustCache := make(map[string]*HostTrustScore)
	eventVecs := make(map[string]Vector)
	scored := make([]ScoredCandidate, 0, len(candidates))

	for _, event := range candidates {
		if !event.Status.Open() {
			continue
		}
		d := distanceBetween(origin, event.Location)
		if d >= 0 && d > req.MaxDistanceKm {
			continue
		}

		trust, ok := trustCache[event.HostID]
		if !ok {
			trust = e.hostTrust(ctx, event.HostID)
			trustCache[event.HostID] = trust
		}

		c := candidateContext{
			user:       user,
			event:      event,
			trust:      trust,
			distanceKm: d,
			userVec:    userVec,
		}
		if e.cfg.Strategy == StrategyEmbedding {
			vec, err := e.embedder.EmbedEvent(ctx, EventFeatures(event, trust))
			if err != nil {
				e.log.Warn().Err(err).Str("event_id", event.ID).Msg("event embedding failed, skipping candidate")
				continue
			}
			c.eventVec = vec
			eventVecs[event.ID] = vec
		}

		sc, err := e.strategy.Score(ctx, c)
		if err != nil {
			e.log.Warn().Err(err).Str("event_id", event.ID).Msg("scoring failed, skipping candidate")
			continue
		}
		scored = append(scored, sc)
	}

	e.syncVectors(ctx, user.ID, userVec, eventVecs)
	return scored, nil
}

// syncVectors pushes the tower vectors computed for this request into
// the configured sink so the vector store can serve them on later
// requests. Failures are logged and never fail matching.
func (e *Engine) syncVectors(ctx context.Context, userID string, userVec Vector, eventVecs map[string]Vector) {
	if e.sink == nil {
		return
	}
	if len(userVec) > 0 {
		if err := e.sink.UpsertUserVector(ctx, userID, userVec); err != nil {
			e.log.Debug().Err(err).Str("user_id", userID).Msg("user vector upsert failed")
		}
	}
	for id, vec := range eventVecs {
		if err := e.sink.UpsertEventVector(ctx, id, vec); err != nil {
			e.log.Debug().Err(err).Str("event_id", id).Msg("event vector upsert failed")
			return
		}
	}
}

// userVector embeds the user tower once per request when the embedding
// strategy is active.
func (e *Engine) userVector(ctx context.Context, user UserProfile) (Vector, error) {
	if e.cfg.Strategy != StrategyEmbedding {
		return nil, nil
	}
	vec, err := e.embedder.EmbedUser(ctx, UserFeatures(user))
	if err != nil {
		return nil, fmt.Errorf("%w: user embedding failed: %v", ErrUpstreamUnavailable, err)
	}
	return vec, nil
}

// attachVectors populates embedding vectors on a candidate context when
// the embedding strategy is active.
func (e *Engine) attachVectors(ctx context.Context, c *candidateContext, user UserProfile) error {
	if e.cfg.Strategy != StrategyEmbedding {
		return nil
	}
	uv, err := e.userVector(ctx, user)
	if err != nil {
		return err
	}
	ev, err := e.embedder.EmbedEvent(ctx, EventFeatures(c.event, c.trust))
	if err != nil {
		return fmt.Errorf("%w: event embedding failed: %v", ErrUpstreamUnavailable, err)
	}
	c.userVec = uv
	c.eventVec = ev
	return nil
}

// hostTrust looks up a host's trust score, degrading to nil (neutral)
// on any failure. Trust service outages must not fail matching.
func (e *Engine) hostTrust(ctx context.Context, hostID string) *HostTrustScore {
	if e.trust == nil || hostID == "" {
		return nil
	}
	trust, err := e.trust.HostTrust(ctx, hostID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.log.Debug().Err(err).Str("host_id", hostID).Msg("host trust lookup failed, using neutral")
		}
		return nil
	}
	return trust
}

// isColdStart reports whether a user has too little signal for
// personalized ranking.
func (e *Engine) isColdStart(user UserProfile) bool {
	if len(user.Hobbies) >= e.cfg.ColdStartMinHobbies {
		return false
	}
	cutoff := e.now().Add(-e.cfg.EngagementWindow)
	for _, in := range user.Interactions {
		if in.OccurredAt.After(cutoff) {
			return false
		}
	}
	return true
}

// coldStartRank orders candidates by popularity and recency for users
// with no personalization signal. The radius cutoff still applies when
// coordinates are known.
func (e *Engine) coldStartRank(candidates []EventRecord, origin *Location, req Request) []ScoredCandidate {
	now := e.now()
	maxAttendees := 1
	for _, ev := range candidates {
		if ev.AttendeeCount > maxAttendees {
			maxAttendees = ev.AttendeeCount
		}
	}

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, event := range candidates {
		if !event.Status.Open() {
			continue
		}
		d := distanceBetween(origin, event.Location)
		if d >= 0 && d > req.MaxDistanceKm {
			continue
		}

		popularity := float64(event.AttendeeCount) / float64(maxAttendees)
		recency := recencyScore(now.Sub(event.CreatedAt))
		score := clamp01(0.6*popularity + 0.4*recency)

		scored = append(scored, ScoredCandidate{
			Event: event,
			Score: score,
			Breakdown: ScoreBreakdown{
				Distance: DistanceScore(d, req.MaxDistanceKm),
				Weighted: score,
			},
			Reasons:    []string{"Popular with the community"},
			DistanceKm: d,
		})
	}

	sortCandidates(scored)
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	return scored
}

// recencyScore decays from 1.0 for brand-new events to near zero after
// a month, with a 7-day half-life.
func recencyScore(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	days := age.Hours() / 24
	return math.Exp(-math.Ln2 / 7 * days)
}

// distanceBetween returns the haversine distance between two optional
// locations, or -1 when either is unknown or invalid.
func distanceBetween(a, b *Location) float64 {
	if a == nil || b == nil || !a.Valid() || !b.Valid() {
		return -1
	}
	return Haversine(*a, *b)
}

// sortCandidates orders candidates by descending score; scores within
// tieEpsilon of each other fall back to ascending event ID so results
// are stable across runs.
func sortCandidates(scored []ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if math.Abs(scored[i].Score-scored[j].Score) < tieEpsilon {
			return strings.Compare(scored[i].Event.ID, scored[j].Event.ID) < 0
		}
		return scored[i].Score > scored[j].Score
	})
}
