// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package match implements the event matching and recommendation engine.
//
// The engine ranks candidate events for a user by combining several
// signals: geographic proximity, hobby affinity, engagement history,
// host trust and reward tier. Two interchangeable scoring strategies are
// provided, a weighted-factor blend and an embedding-dominant mode built
// on deterministic hash embeddings. Results are cached per user and
// recommendation kind with a bounded TTL.
//
// The package is self-contained: callers supply data through the
// DataProvider interface and receive ranked results. It has no knowledge
// of HTTP, SQL or any transport.
package match

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors returned by the engine and its data providers.
// Callers classify failures with errors.Is; transport layers map them
// to status codes.
var (
	// ErrNotFound indicates the requested user or event does not exist.
	ErrNotFound = errors.New("match: not found")

	// ErrUpstreamUnavailable indicates a dependency (database, geocoder,
	// vector store, host trust service) could not serve the request.
	ErrUpstreamUnavailable = errors.New("match: upstream unavailable")

	// ErrInvalidInput indicates the request parameters failed validation.
	ErrInvalidInput = errors.New("match: invalid input")
)

// RewardTier is a user's loyalty standing. Higher tiers receive a small
// additive boost during scoring and extra perk text in explanations.
type RewardTier string

// Reward tiers in ascending order of standing.
const (
	TierNone   RewardTier = "none"
	TierBronze RewardTier = "bronze"
	TierSilver RewardTier = "silver"
	TierGold   RewardTier = "gold"
)

// Valid reports whether t is a recognized reward tier.
func (t RewardTier) Valid() bool {
	switch t {
	case TierNone, TierBronze, TierSilver, TierGold:
		return true
	}
	return false
}

// Boost returns the additive score boost for the tier.
func (t RewardTier) Boost() float64 {
	switch t {
	case TierBronze:
		return 0.05
	case TierSilver:
		return 0.10
	case TierGold:
		return 0.15
	default:
		return 0
	}
}

// EventStatus describes an event's lifecycle state.
type EventStatus string

// Event lifecycle states.
const (
	StatusActive    EventStatus = "active"
	StatusScheduled EventStatus = "scheduled"
	StatusOngoing   EventStatus = "ongoing"
	StatusCancelled EventStatus = "cancelled"
	StatusCompleted EventStatus = "completed"
	StatusDraft     EventStatus = "draft"
)

// Open reports whether an event in this state is eligible for
// matching. Draft, cancelled and completed events never are.
func (s EventStatus) Open() bool {
	switch s {
	case StatusActive, StatusScheduled, StatusOngoing:
		return true
	}
	return false
}

// RecommendationKind distinguishes cached recommendation sets for a user.
type RecommendationKind string

// Recommendation kinds.
const (
	KindEvents  RecommendationKind = "events"
	KindHobbies RecommendationKind = "hobbies"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Hobby is a user interest with an affinity score.
type Hobby struct {
	// Name is the hobby label, e.g. "hiking".
	Name string `json:"name"`

	// Affinity is the user's interest strength in [0, 1].
	// Sourced from explicit signup choices and interaction history.
	Affinity float64 `json:"affinity"`

	// Reason explains why the hobby was suggested. Only set on
	// recommendation output.
	Reason string `json:"reason,omitempty"`
}

// Interaction is a single engagement event between a user and an event,
// such as a view, click, RSVP or attendance.
type Interaction struct {
	// EventID identifies the event interacted with.
	EventID string `json:"event_id"`

	// Type is the interaction kind: view, click, rsvp, attend, share.
	Type string `json:"type"`

	// Category is the event category at interaction time.
	Category string `json:"category"`

	// OccurredAt is when the interaction happened.
	OccurredAt time.Time `json:"occurred_at"`
}

// Attended reports whether the interaction is a confirmed attendance.
// Only attended events feed the engagement tower facet; views and
// clicks are too weak a signal.
func (i Interaction) Attended() bool {
	switch strings.ToLower(strings.TrimSpace(i.Type)) {
	case "attend", "attended", "check_in", "checkin":
		return true
	}
	return false
}

// AdSignal summarizes a user's advertising engagement, used as a weak
// feature in the user embedding tower.
type AdSignal struct {
	Clicks      int `json:"clicks"`
	Conversions int `json:"conversions"`
}

// UserProfile is everything the engine knows about a user.
type UserProfile struct {
	// ID is the user's unique identifier.
	ID string `json:"id"`

	// Location is the user's home coordinates; nil when unknown.
	Location *Location `json:"location,omitempty"`

	// Hobbies are the user's interests with affinity scores.
	Hobbies []Hobby `json:"hobbies"`

	// Interactions is the user's recent engagement history, newest first.
	Interactions []Interaction `json:"interactions"`

	// Tier is the user's reward tier.
	Tier RewardTier `json:"tier"`

	// AgeBracket is a coarse demographic bucket, e.g. "25-34".
	AgeBracket string `json:"age_bracket,omitempty"`

	// Gender is a free-form demographic field; may be empty.
	Gender string `json:"gender,omitempty"`

	// BlogTopics are topics the user reads or writes about.
	BlogTopics []string `json:"blog_topics,omitempty"`

	// Ads summarizes advertising engagement.
	Ads AdSignal `json:"ads"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`
}

// EventRecord is a candidate event as seen by the engine.
type EventRecord struct {
	// ID is the event's unique identifier.
	ID string `json:"id"`

	// Title is the display name.
	Title string `json:"title"`

	// Category is the primary category, e.g. "fitness".
	Category string `json:"category"`

	// Tags are secondary descriptors.
	Tags []string `json:"tags,omitempty"`

	// Location is the venue coordinates; nil when unknown.
	Location *Location `json:"location,omitempty"`

	// HostID identifies the organizer.
	HostID string `json:"host_id"`

	// Price is the ticket price; zero means free.
	Price float64 `json:"price"`

	// Status is the lifecycle state.
	Status EventStatus `json:"status"`

	// StartsAt is the scheduled start time.
	StartsAt time.Time `json:"starts_at"`

	// CreatedAt is when the event was published.
	CreatedAt time.Time `json:"created_at"`

	// AttendeeCount is the current RSVP count, used for popularity.
	AttendeeCount int `json:"attendee_count"`
}

// PriceTier buckets an event price into a coarse band.
func (e EventRecord) PriceTier() string {
	switch {
	case e.Price <= 0:
		return "free"
	case e.Price < 20:
		return "budget"
	case e.Price < 50:
		return "standard"
	default:
		return "premium"
	}
}

// HostTrustScore is a host's reputation as reported by the trust service.
type HostTrustScore struct {
	// HostID identifies the host.
	HostID string `json:"host_id"`

	// Rating is the average rating on a 0-5 scale.
	Rating float64 `json:"rating"`

	// ReviewCount is the number of reviews behind the rating.
	ReviewCount int `json:"review_count"`
}

// ScoreBreakdown itemizes the factor scores behind a final score.
// All components are in [0, 1]. Weighted is the final blended value.
type ScoreBreakdown struct {
	Distance    float64 `json:"distance"`
	Hobby       float64 `json:"hobby"`
	Engagement  float64 `json:"engagement"`
	HostTrust   float64 `json:"host_trust"`
	RewardBoost float64 `json:"reward_boost"`
	Similarity  float64 `json:"similarity,omitempty"`
	Weighted    float64 `json:"weighted"`
}

// ScoredCandidate is one event with its final score, factor breakdown
// and human-readable reasons.
type ScoredCandidate struct {
	// Event is the scored candidate.
	Event EventRecord `json:"event"`

	// Score is the final score in [0, 1]; higher is better.
	Score float64 `json:"score"`

	// Breakdown itemizes the contributing factors.
	Breakdown ScoreBreakdown `json:"breakdown"`

	// Reasons are short explanations, e.g. "Near you".
	Reasons []string `json:"reasons,omitempty"`

	// DistanceKm is the great-circle distance to the user, or -1 when
	// either side's coordinates are unknown.
	DistanceKm float64 `json:"distance_km"`
}

// RankedList is an ordered recommendation result for a user.
type RankedList struct {
	// UserID identifies the subject of the recommendations.
	UserID string `json:"user_id"`

	// Kind is the recommendation kind.
	Kind RecommendationKind `json:"kind"`

	// Candidates are the ranked results, best first.
	Candidates []ScoredCandidate `json:"candidates"`

	// Hobbies holds hobby-kind results; empty for event kinds.
	Hobbies []Hobby `json:"hobbies,omitempty"`

	// IsNewUser is true when cold-start fallback ranking was used.
	IsNewUser bool `json:"is_new_user"`

	// Strategy names the scoring strategy that produced the list.
	Strategy string `json:"strategy"`

	// GeneratedAt is when the list was computed.
	GeneratedAt time.Time `json:"generated_at"`
}

// Request parameterizes a matching call.
type Request struct {
	// UserID is the subject user. Required.
	UserID string `json:"user_id"`

	// Limit caps the number of results. Zero means the engine default.
	Limit int `json:"limit,omitempty"`

	// MaxDistanceKm overrides the configured search radius when > 0.
	MaxDistanceKm float64 `json:"max_distance_km,omitempty"`

	// Location overrides the user's stored location when non-nil.
	Location *Location `json:"location,omitempty"`

	// Categories restricts candidates to the given categories when
	// non-empty.
	Categories []string `json:"categories,omitempty"`

	// BypassCache forces a fresh computation even when a cached list
	// exists.
	BypassCache bool `json:"bypass_cache,omitempty"`
}
