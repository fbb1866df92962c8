// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockProvider is a hand-rolled DataProvider backed by maps.
type mockProvider struct {
	users  map[string]UserProfile
	events []EventRecord

	userErr      error
	candidateErr error
}

func (m *mockProvider) User(_ context.Context, id string) (UserProfile, error) {
	if m.userErr != nil {
		return UserProfile{}, m.userErr
	}
	u, ok := m.users[id]
	if !ok {
		return UserProfile{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func (m *mockProvider) CandidateEvents(_ context.Context, f CandidateFilter) ([]EventRecord, error) {
	if m.candidateErr != nil {
		return nil, m.candidateErr
	}
	out := make([]EventRecord, 0, len(m.events))
	for _, e := range m.events {
		if len(f.Categories) > 0 && !containsString(f.Categories, e.Category) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockProvider) Event(_ context.Context, id string) (EventRecord, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return EventRecord{}, fmt.Errorf("%w: event %s", ErrNotFound, id)
}

func (m *mockProvider) UserIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// mockTrust returns fixed trust scores per host.
type mockTrust struct {
	scores map[string]*HostTrustScore
	err    error
	calls  int
}

func (m *mockTrust) HostTrust(_ context.Context, hostID string) (*HostTrustScore, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.scores[hostID]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: host %s", ErrNotFound, hostID)
}

// memCache is a minimal in-memory Cache for engine tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]RankedList
	puts    int
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]RankedList)}
}

func (c *memCache) key(userID string, kind RecommendationKind) string {
	return userID + "/" + string(kind)
}

func (c *memCache) Get(_ context.Context, userID string, kind RecommendationKind) (RankedList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.entries[c.key(userID, kind)]
	if ok {
		c.hits++
	}
	return list, ok
}

func (c *memCache) Put(_ context.Context, userID string, kind RecommendationKind, list RankedList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(userID, kind)] = list
	c.puts++
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID string, kind RecommendationKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, c.key(userID, kind))
	return nil
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// berlin is the test origin; eventAtKm places events due north of it.
var berlin = Location{Latitude: 52.52, Longitude: 13.405}

// eventAtKm returns a location approximately km kilometers north of
// berlin. One degree of latitude is about 111.19 km.
func eventAtKm(km float64) *Location {
	return &Location{Latitude: berlin.Latitude + km/111.19, Longitude: berlin.Longitude}
}

func activeUser() UserProfile {
	return UserProfile{
		ID:       "u1",
		Location: &berlin,
		Hobbies:  []Hobby{{Name: "hiking", Affinity: 0.9}},
		Interactions: []Interaction{
			{EventID: "e0", Type: "rsvp", Category: "outdoor", OccurredAt: testNow.Add(-24 * time.Hour)},
		},
		Tier:      TierSilver,
		CreatedAt: testNow.Add(-365 * 24 * time.Hour),
	}
}

func testEngine(p DataProvider, opts ...Option) *Engine {
	opts = append(opts, WithClock(func() time.Time { return testNow }))
	return NewEngine(DefaultConfig(), p, opts...)
}

func TestMatchEventsRadiusCutoff(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "near", Category: "hiking", Location: eventAtKm(49.9), Status: StatusActive, StartsAt: testNow.Add(24 * time.Hour)},
			{ID: "far", Category: "hiking", Location: eventAtKm(50.1), Status: StatusActive, StartsAt: testNow.Add(24 * time.Hour)},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(list.Candidates))
	}
	if list.Candidates[0].Event.ID != "near" {
		t.Errorf("kept event = %s, want near", list.Candidates[0].Event.ID)
	}
}

func TestMatchEventsMissingCoordinatesAreNeutral(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			// No location: kept, scored with neutral distance.
			{ID: "nowhere", Category: "hiking", Status: StatusActive, StartsAt: testNow.Add(24 * time.Hour)},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(list.Candidates))
	}
	c := list.Candidates[0]
	if c.DistanceKm != -1 {
		t.Errorf("distance = %f, want -1", c.DistanceKm)
	}
	if c.Breakdown.Distance != neutralScore {
		t.Errorf("distance score = %f, want neutral", c.Breakdown.Distance)
	}
}

func TestMatchEventsTieBreakByEventID(t *testing.T) {
	// Identical events except for ID produce identical scores; order
	// must be ascending by ID regardless of input order.
	mk := func(id string) EventRecord {
		return EventRecord{ID: id, Category: "hiking", Location: eventAtKm(10), Status: StatusActive, StartsAt: testNow.Add(24 * time.Hour)}
	}
	p := &mockProvider{
		users:  map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{mk("c"), mk("a"), mk("b")},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	got := make([]string, len(list.Candidates))
	for i, c := range list.Candidates {
		got[i] = c.Event.ID
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestMatchEventsRankingOrder(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "weak", Category: "surfing", Location: eventAtKm(40), Status: StatusActive, StartsAt: testNow.Add(24 * time.Hour)},
			{ID: "strong", Category: "hiking", Location: eventAtKm(2), Status: StatusActive, StartsAt: testNow.Add(24 * time.Hour)},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(list.Candidates))
	}
	if list.Candidates[0].Event.ID != "strong" {
		t.Errorf("top candidate = %s, want strong", list.Candidates[0].Event.ID)
	}
	if list.Candidates[0].Score <= list.Candidates[1].Score {
		t.Errorf("scores not descending: %f <= %f", list.Candidates[0].Score, list.Candidates[1].Score)
	}
}

func TestMatchEventsFiltersByLifecycle(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "cancelled", Category: "hiking", Location: eventAtKm(5), Status: StatusCancelled},
			{ID: "draft", Category: "hiking", Location: eventAtKm(5), Status: StatusDraft},
			{ID: "done", Category: "hiking", Location: eventAtKm(5), Status: StatusCompleted},
			{ID: "live", Category: "hiking", Location: eventAtKm(5), Status: StatusActive},
			{ID: "scheduled", Category: "hiking", Location: eventAtKm(6), Status: StatusScheduled},
			{ID: "ongoing", Category: "hiking", Location: eventAtKm(7), Status: StatusOngoing},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	got := make(map[string]bool, len(list.Candidates))
	for _, c := range list.Candidates {
		got[c.Event.ID] = true
	}
	for _, id := range []string{"live", "scheduled", "ongoing"} {
		if !got[id] {
			t.Errorf("open event %q missing from candidates", id)
		}
	}
	for _, id := range []string{"cancelled", "draft", "done"} {
		if got[id] {
			t.Errorf("closed event %q should not be a candidate", id)
		}
	}
}

func TestMatchEventsLimit(t *testing.T) {
	var events []EventRecord
	for i := 0; i < 30; i++ {
		events = append(events, EventRecord{
			ID:       fmt.Sprintf("e%02d", i),
			Category: "hiking",
			Location: eventAtKm(float64(i)),
			Status:   StatusActive,
		})
	}
	p := &mockProvider{users: map[string]UserProfile{"u1": activeUser()}, events: events}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1", Limit: 5})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 5 {
		t.Errorf("got %d candidates, want 5", len(list.Candidates))
	}
}

func TestMatchEventsValidation(t *testing.T) {
	p := &mockProvider{users: map[string]UserProfile{"u1": activeUser()}}
	e := testEngine(p)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing user id", Request{}},
		{"negative limit", Request{UserID: "u1", Limit: -1}},
		{"negative radius", Request{UserID: "u1", MaxDistanceKm: -5}},
		{"invalid location", Request{UserID: "u1", Location: &Location{Latitude: 99, Longitude: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.MatchEvents(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestMatchEventsUnknownUserFallsBackToDefaults(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{},
		events: []EventRecord{
			{ID: "e1", Status: StatusActive, Category: "food", AttendeeCount: 40, StartsAt: testNow.Add(48 * time.Hour)},
			{ID: "e2", Status: StatusActive, Category: "music", AttendeeCount: 5, StartsAt: testNow.Add(24 * time.Hour)},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "ghost"})
	if err != nil {
		t.Fatalf("MatchEvents: %v", err)
	}
	if !list.IsNewUser {
		t.Error("IsNewUser = false, want true for unknown user")
	}
	if list.Strategy != "cold_start" {
		t.Errorf("strategy = %q, want cold_start", list.Strategy)
	}
	if len(list.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(list.Candidates))
	}
}

func TestMatchEventsUpstreamFailure(t *testing.T) {
	p := &mockProvider{
		users:        map[string]UserProfile{"u1": activeUser()},
		candidateErr: fmt.Errorf("%w: database timeout", ErrUpstreamUnavailable),
	}
	e := testEngine(p)

	_, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestColdStartFallback(t *testing.T) {
	newUser := UserProfile{
		ID:        "fresh",
		Location:  &berlin,
		CreatedAt: testNow.Add(-time.Hour),
	}
	p := &mockProvider{
		users: map[string]UserProfile{"fresh": newUser},
		events: []EventRecord{
			{ID: "quiet", Category: "food", Location: eventAtKm(5), Status: StatusActive, AttendeeCount: 2, CreatedAt: testNow.Add(-60 * 24 * time.Hour)},
			{ID: "buzzing", Category: "music", Location: eventAtKm(5), Status: StatusActive, AttendeeCount: 200, CreatedAt: testNow.Add(-24 * time.Hour)},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "fresh"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if !list.IsNewUser {
		t.Error("IsNewUser = false, want true")
	}
	if list.Strategy != "cold_start" {
		t.Errorf("strategy = %s, want cold_start", list.Strategy)
	}
	if len(list.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(list.Candidates))
	}
	if list.Candidates[0].Event.ID != "buzzing" {
		t.Errorf("top cold start candidate = %s, want buzzing", list.Candidates[0].Event.ID)
	}
}

func TestColdStartNotTriggeredByHobbies(t *testing.T) {
	u := UserProfile{
		ID:      "u1",
		Hobbies: []Hobby{{Name: "hiking", Affinity: 0.5}},
	}
	p := &mockProvider{
		users:  map[string]UserProfile{"u1": u},
		events: []EventRecord{{ID: "e1", Category: "hiking", Status: StatusActive}},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if list.IsNewUser {
		t.Error("user with hobbies flagged as new")
	}
}

func TestColdStartNotTriggeredByRecentInteractions(t *testing.T) {
	u := UserProfile{
		ID: "u1",
		Interactions: []Interaction{
			{EventID: "e0", Type: "view", Category: "music", OccurredAt: testNow.Add(-time.Hour)},
		},
	}
	p := &mockProvider{
		users:  map[string]UserProfile{"u1": u},
		events: []EventRecord{{ID: "e1", Category: "music", Status: StatusActive}},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if list.IsNewUser {
		t.Error("recently active user flagged as new")
	}
}

func TestRecommendEventsUsesCache(t *testing.T) {
	p := &mockProvider{
		users:  map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{{ID: "e1", Category: "hiking", Status: StatusActive}},
	}
	cache := newMemCache()
	e := testEngine(p, WithCache(cache))

	first, err := e.RecommendEvents(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RecommendEvents() error: %v", err)
	}
	second, err := e.RecommendEvents(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RecommendEvents() error: %v", err)
	}

	if cache.puts != 1 {
		t.Errorf("cache puts = %d, want 1", cache.puts)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}
	if !first.GeneratedAt.Equal(second.GeneratedAt) {
		t.Error("second call did not return the cached list")
	}
}

func TestRefreshInvalidatesAndRecomputes(t *testing.T) {
	p := &mockProvider{
		users:  map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{{ID: "e1", Category: "hiking", Status: StatusActive}},
	}
	cache := newMemCache()
	e := testEngine(p, WithCache(cache))

	if _, err := e.RecommendEvents(context.Background(), "u1"); err != nil {
		t.Fatalf("RecommendEvents() error: %v", err)
	}

	p.events = append(p.events, EventRecord{ID: "e2", Category: "hiking", Status: StatusActive})

	list, err := e.Refresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if len(list.Candidates) != 2 {
		t.Errorf("refreshed list has %d candidates, want 2", len(list.Candidates))
	}

	cached, ok := cache.Get(context.Background(), "u1", KindEvents)
	if !ok {
		t.Fatal("refresh did not repopulate cache")
	}
	if len(cached.Candidates) != 2 {
		t.Errorf("cached list has %d candidates, want 2", len(cached.Candidates))
	}
	if _, ok := cache.Get(context.Background(), "u1", KindHobbies); !ok {
		t.Error("refresh did not repopulate hobby recommendations")
	}
}

func TestRefreshAll(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{
			"u1": activeUser(),
			"u2": {ID: "u2", Hobbies: []Hobby{{Name: "cooking", Affinity: 1}}},
		},
		events: []EventRecord{{ID: "e1", Category: "cooking", Status: StatusActive}},
	}
	cache := newMemCache()
	e := testEngine(p, WithCache(cache))

	n, err := e.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error: %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed = %d, want 2", n)
	}
	// Each refresh caches both the events and hobbies kinds.
	if cache.puts != 4 {
		t.Errorf("cache puts = %d, want 4", cache.puts)
	}
}

func TestRefreshAllManyUsers(t *testing.T) {
	users := make(map[string]UserProfile, 20)
	for i := 0; i < 20; i++ {
		u := activeUser()
		u.ID = fmt.Sprintf("u%02d", i)
		users[u.ID] = u
	}
	p := &mockProvider{
		users:  users,
		events: []EventRecord{{ID: "e1", Category: "hiking", Status: StatusActive}},
	}
	cache := newMemCache()
	e := testEngine(p, WithCache(cache))

	n, err := e.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error: %v", err)
	}
	if n != 20 {
		t.Errorf("refreshed = %d, want 20", n)
	}
	for id := range users {
		if _, ok := cache.Get(context.Background(), id, KindEvents); !ok {
			t.Errorf("user %s has no cached events after bulk refresh", id)
		}
	}
}

func TestRecommendHobbies(t *testing.T) {
	p := &mockProvider{users: map[string]UserProfile{"u1": activeUser()}}
	e := testEngine(p)

	list, err := e.RecommendHobbies(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RecommendHobbies() error: %v", err)
	}
	if list.Kind != KindHobbies {
		t.Errorf("kind = %s, want hobbies", list.Kind)
	}
	if len(list.Hobbies) == 0 {
		t.Fatal("no hobbies returned")
	}
	// The user's own hobby ranks first.
	if list.Hobbies[0].Name != "hiking" {
		t.Errorf("top hobby = %s, want hiking", list.Hobbies[0].Name)
	}
	// Defaults top up the list without duplicating user hobbies.
	seen := make(map[string]int)
	for _, h := range list.Hobbies {
		seen[h.Name]++
	}
	for name, n := range seen {
		if n > 1 {
			t.Errorf("hobby %s appears %d times", name, n)
		}
	}
}

func TestRecommendHobbiesNewUser(t *testing.T) {
	p := &mockProvider{users: map[string]UserProfile{"fresh": {ID: "fresh"}}}
	e := testEngine(p)

	list, err := e.RecommendHobbies(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("RecommendHobbies() error: %v", err)
	}
	if !list.IsNewUser {
		t.Error("IsNewUser = false, want true")
	}
	if len(list.Hobbies) != len(DefaultHobbies()) {
		t.Errorf("got %d hobbies, want %d defaults", len(list.Hobbies), len(DefaultHobbies()))
	}
}

func TestBreakdown(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "e1", Category: "hiking", HostID: "h1", Location: eventAtKm(3), Status: StatusActive},
		},
	}
	trust := &mockTrust{scores: map[string]*HostTrustScore{
		"h1": {HostID: "h1", Rating: 4.9, ReviewCount: 42},
	}}
	e := testEngine(p, WithTrustProvider(trust))

	sc, err := e.Breakdown(context.Background(), "u1", "e1")
	if err != nil {
		t.Fatalf("Breakdown() error: %v", err)
	}
	if sc.Breakdown.Hobby != 1.0 {
		t.Errorf("hobby score = %f, want 1.0", sc.Breakdown.Hobby)
	}
	if sc.Breakdown.HostTrust != 4.9/5 {
		t.Errorf("host trust = %f, want %f", sc.Breakdown.HostTrust, 4.9/5)
	}

	_, err = e.Breakdown(context.Background(), "u1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTrustFailureDegradesToNeutral(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "e1", Category: "hiking", HostID: "h1", Status: StatusActive},
		},
	}
	trust := &mockTrust{err: fmt.Errorf("%w: trust service down", ErrUpstreamUnavailable)}
	e := testEngine(p, WithTrustProvider(trust))

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(list.Candidates))
	}
	if got := list.Candidates[0].Breakdown.HostTrust; got != neutralScore {
		t.Errorf("host trust after outage = %f, want neutral", got)
	}
}

func TestTrustLookupsCachedPerHost(t *testing.T) {
	events := []EventRecord{
		{ID: "e1", Category: "hiking", HostID: "h1", Status: StatusActive},
		{ID: "e2", Category: "hiking", HostID: "h1", Status: StatusActive},
		{ID: "e3", Category: "hiking", HostID: "h2", Status: StatusActive},
	}
	p := &mockProvider{users: map[string]UserProfile{"u1": activeUser()}, events: events}
	trust := &mockTrust{scores: map[string]*HostTrustScore{
		"h1": {HostID: "h1", Rating: 4, ReviewCount: 5},
		"h2": {HostID: "h2", Rating: 3, ReviewCount: 5},
	}}
	e := testEngine(p, WithTrustProvider(trust))

	if _, err := e.MatchEvents(context.Background(), Request{UserID: "u1"}); err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if trust.calls != 2 {
		t.Errorf("trust lookups = %d, want 2 (one per host)", trust.calls)
	}
}

func TestEmbeddingStrategyRanking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyEmbedding
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "e1", Category: "hiking", Status: StatusActive},
			{ID: "e2", Category: "opera", Status: StatusActive},
		},
	}
	e := NewEngine(cfg, p, WithClock(func() time.Time { return testNow }))

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if list.Strategy != string(StrategyEmbedding) {
		t.Errorf("strategy = %s, want embedding", list.Strategy)
	}
	if len(list.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(list.Candidates))
	}
	for _, c := range list.Candidates {
		if c.Breakdown.Similarity <= 0 || c.Breakdown.Similarity > 1 {
			t.Errorf("similarity = %f, want within (0, 1]", c.Breakdown.Similarity)
		}
		if c.Score != c.Breakdown.Similarity {
			t.Errorf("score %f != similarity %f", c.Score, c.Breakdown.Similarity)
		}
	}
}

// mockSink records vector upserts.
type mockSink struct {
	mu        sync.Mutex
	userIDs   []string
	eventIDs  []string
	upsertErr error
}

func (s *mockSink) UpsertUserVector(_ context.Context, id string, _ Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userIDs = append(s.userIDs, id)
	return s.upsertErr
}

func (s *mockSink) UpsertEventVector(_ context.Context, id string, _ Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventIDs = append(s.eventIDs, id)
	return s.upsertErr
}

func TestEmbeddingStrategySyncsVectors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyEmbedding
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "e1", Category: "hiking", Status: StatusActive},
			{ID: "e2", Category: "opera", Status: StatusActive},
		},
	}
	sink := &mockSink{}
	e := NewEngine(cfg, p,
		WithClock(func() time.Time { return testNow }),
		WithVectorSink(sink))

	if _, err := e.MatchEvents(context.Background(), Request{UserID: "u1"}); err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(sink.userIDs) != 1 || sink.userIDs[0] != "u1" {
		t.Errorf("user upserts = %v, want [u1]", sink.userIDs)
	}
	if len(sink.eventIDs) != 2 {
		t.Errorf("event upserts = %v, want both candidates", sink.eventIDs)
	}
}

func TestVectorSinkFailureDoesNotFailMatching(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyEmbedding
	p := &mockProvider{
		users:  map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{{ID: "e1", Category: "hiking", Status: StatusActive}},
	}
	sink := &mockSink{upsertErr: fmt.Errorf("%w: store down", ErrUpstreamUnavailable)}
	e := NewEngine(cfg, p,
		WithClock(func() time.Time { return testNow }),
		WithVectorSink(sink))

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1"})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(list.Candidates))
	}
}

func TestRequestLocationOverride(t *testing.T) {
	// User has no stored location; the request supplies one.
	u := activeUser()
	u.Location = nil
	p := &mockProvider{
		users: map[string]UserProfile{"u1": u},
		events: []EventRecord{
			{ID: "near", Category: "hiking", Location: eventAtKm(10), Status: StatusActive},
			{ID: "far", Category: "hiking", Location: eventAtKm(80), Status: StatusActive},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1", Location: &berlin})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 1 || list.Candidates[0].Event.ID != "near" {
		t.Fatalf("override location not applied: %+v", list.Candidates)
	}
}

func TestRequestRadiusOverride(t *testing.T) {
	p := &mockProvider{
		users: map[string]UserProfile{"u1": activeUser()},
		events: []EventRecord{
			{ID: "e1", Category: "hiking", Location: eventAtKm(80), Status: StatusActive},
		},
	}
	e := testEngine(p)

	list, err := e.MatchEvents(context.Background(), Request{UserID: "u1", MaxDistanceKm: 100})
	if err != nil {
		t.Fatalf("MatchEvents() error: %v", err)
	}
	if len(list.Candidates) != 1 {
		t.Fatalf("widened radius dropped the candidate")
	}
}
