// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// neutralScore is used for a factor when its inputs are unknown, so
// missing data neither rewards nor penalizes a candidate.
const neutralScore = 0.5

// Haversine returns the great-circle distance between two coordinates
// in kilometers.
func Haversine(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// DistanceScore maps a distance to [0, 1] with exponential half-life
// decay: the score is 1.0 at zero distance and 0.5 at half the search
// radius. Callers exclude candidates beyond the radius before scoring;
// this function only shapes the in-radius curve.
//
// A negative distance means coordinates were unavailable and yields the
// neutral score.
func DistanceScore(distanceKm, maxDistanceKm float64) float64 {
	if distanceKm < 0 {
		return neutralScore
	}
	if maxDistanceKm <= 0 {
		return neutralScore
	}
	halfLife := maxDistanceKm / 2
	return math.Exp(-math.Ln2 / halfLife * distanceKm)
}

// categoryGroups cluster related hobby and event terms. Terms in the
// same group score 0.6 even without a textual match.
var categoryGroups = map[string][]string{
	"fitness": {"gym", "yoga", "running", "cycling", "swimming", "crossfit",
		"pilates", "fitness", "workout", "martial arts", "boxing", "climbing"},
	"music": {"concert", "live music", "music", "karaoke", "dj", "singing",
		"guitar", "piano", "band", "festival", "jazz", "opera"},
	"outdoor": {"hiking", "camping", "fishing", "kayaking", "surfing",
		"outdoor", "nature", "birdwatching", "gardening", "trail", "picnic"},
	"food": {"cooking", "baking", "wine", "beer", "coffee", "food",
		"restaurant", "dining", "brunch", "bbq", "vegan", "tasting"},
	"tech": {"programming", "coding", "tech", "technology", "gaming",
		"robotics", "ai", "startup", "hackathon", "electronics", "3d printing"},
	"arts": {"painting", "drawing", "photography", "crafts", "pottery",
		"theater", "museum", "art", "writing", "poetry", "film", "dance"},
	"social": {"networking", "board games", "trivia", "book club", "meetup",
		"volunteering", "language exchange", "speed dating", "party", "social"},
}

// categoryGroupOf returns the group a term belongs to, or "".
func categoryGroupOf(term string) string {
	term = normalizeTerm(term)
	for group, members := range categoryGroups {
		if term == group {
			return group
		}
		for _, m := range members {
			if term == m {
				return group
			}
		}
	}
	return ""
}

// HobbyScore measures how well an event's category and tags match a
// user's hobbies. The best pairwise match wins:
//
//	1.0  exact term match
//	0.8  one term contains the other
//	0.6  both terms in the same category group
//	0.3  otherwise (baseline, never zero)
//
// Missing hobbies or a category-less, tag-less event also score the
// 0.3 baseline: absence of evidence is the weakest match, not a
// neutral one.
func HobbyScore(hobbies []Hobby, event EventRecord) float64 {
	if len(hobbies) == 0 {
		return 0.3
	}

	eventTerms := make([]string, 0, len(event.Tags)+1)
	if c := normalizeTerm(event.Category); c != "" {
		eventTerms = append(eventTerms, c)
	}
	for _, t := range event.Tags {
		if term := normalizeTerm(t); term != "" {
			eventTerms = append(eventTerms, term)
		}
	}
	if len(eventTerms) == 0 {
		return 0.3
	}

	best := 0.3
	for _, h := range hobbies {
		hobby := normalizeTerm(h.Name)
		if hobby == "" {
			continue
		}
		hobbyGroup := categoryGroupOf(hobby)
		for _, term := range eventTerms {
			score := 0.3
			switch {
			case hobby == term:
				score = 1.0
			case strings.Contains(term, hobby) || strings.Contains(hobby, term):
				score = 0.8
			case hobbyGroup != "" && hobbyGroup == categoryGroupOf(term):
				score = 0.6
			}
			if score > best {
				best = score
			}
			if best == 1.0 {
				return best
			}
		}
	}
	return best
}

// EngagementScore measures a user's recent activity level. Interactions
// inside the lookback window count linearly up to the saturation point,
// beyond which the score stays at 1.0.
func EngagementScore(interactions []Interaction, now time.Time, window time.Duration, saturation int) float64 {
	if saturation <= 0 {
		return 0
	}
	cutoff := now.Add(-window)
	count := 0
	for _, in := range interactions {
		if in.OccurredAt.After(cutoff) {
			count++
		}
	}
	if count >= saturation {
		return 1.0
	}
	return float64(count) / float64(saturation)
}

// HostTrustFactor normalizes a 0-5 host rating onto [0, 1]. Hosts
// without reviews receive the neutral score.
func HostTrustFactor(trust *HostTrustScore) float64 {
	if trust == nil || trust.ReviewCount == 0 {
		return neutralScore
	}
	return clamp01(trust.Rating / 5)
}

// candidateContext carries the per-candidate inputs a strategy scores.
type candidateContext struct {
	user       UserProfile
	event      EventRecord
	trust      *HostTrustScore
	distanceKm float64
	userVec    Vector
	eventVec   Vector
}

// Strategy computes a final score and explanation for one candidate.
type Strategy interface {
	// Name identifies the strategy in results and logs.
	Name() string

	// Score scores a single candidate.
	Score(ctx context.Context, c candidateContext) (ScoredCandidate, error)
}

// WeightedFactorStrategy blends the five factor scores with configured
// weights.
type WeightedFactorStrategy struct {
	cfg Config

	// now is injectable for tests.
	now func() time.Time
}

// NewWeightedFactorStrategy returns a strategy using cfg's weights and
// thresholds.
func NewWeightedFactorStrategy(cfg Config) *WeightedFactorStrategy {
	return &WeightedFactorStrategy{cfg: cfg, now: time.Now}
}

// Name implements Strategy.
func (s *WeightedFactorStrategy) Name() string { return string(StrategyWeighted) }

// Score implements Strategy.
func (s *WeightedFactorStrategy) Score(_ context.Context, c candidateContext) (ScoredCandidate, error) {
	b := s.breakdown(c)
	w := s.cfg.Weights
	b.Weighted = clamp01(w.Distance*b.Distance +
		w.Hobby*b.Hobby +
		w.Engagement*b.Engagement +
		w.HostTrust*b.HostTrust +
		w.RewardBoost*b.RewardBoost)

	return ScoredCandidate{
		Event:      c.event,
		Score:      b.Weighted,
		Breakdown:  b,
		Reasons:    buildReasons(c, b, s.cfg),
		DistanceKm: c.distanceKm,
	}, nil
}

// breakdown computes the raw factor scores for a candidate.
func (s *WeightedFactorStrategy) breakdown(c candidateContext) ScoreBreakdown {
	boost := 0.0
	if c.user.Tier.Valid() {
		boost = c.user.Tier.Boost()
	}
	return ScoreBreakdown{
		Distance:    DistanceScore(c.distanceKm, s.cfg.MaxDistanceKm),
		Hobby:       HobbyScore(c.user.Hobbies, c.event),
		Engagement:  EngagementScore(c.user.Interactions, s.now(), s.cfg.EngagementWindow, s.cfg.EngagementSaturation),
		HostTrust:   HostTrustFactor(c.trust),
		RewardBoost: boost,
	}
}

// EmbeddingDominantStrategy ranks candidates by two-tower embedding
// similarity. The factor scores are still computed so explanations and
// breakdowns stay meaningful.
type EmbeddingDominantStrategy struct {
	cfg      Config
	weighted *WeightedFactorStrategy
}

// NewEmbeddingDominantStrategy returns an embedding-first strategy.
func NewEmbeddingDominantStrategy(cfg Config) *EmbeddingDominantStrategy {
	return &EmbeddingDominantStrategy{
		cfg:      cfg,
		weighted: NewWeightedFactorStrategy(cfg),
	}
}

// Name implements Strategy.
func (s *EmbeddingDominantStrategy) Name() string { return string(StrategyEmbedding) }

// Score implements Strategy.
func (s *EmbeddingDominantStrategy) Score(_ context.Context, c candidateContext) (ScoredCandidate, error) {
	if len(c.userVec) == 0 || len(c.eventVec) == 0 {
		return ScoredCandidate{}, fmt.Errorf("%w: missing embedding for candidate %s", ErrInvalidInput, c.event.ID)
	}

	b := s.weighted.breakdown(c)
	b.Similarity = Similarity(c.userVec, c.eventVec)
	b.Weighted = b.Similarity

	sc := ScoredCandidate{
		Event:      c.event,
		Score:      b.Similarity,
		Breakdown:  b,
		Reasons:    buildReasons(c, b, s.cfg),
		DistanceKm: c.distanceKm,
	}
	if b.Similarity >= s.cfg.SimilarityThreshold {
		sc.Reasons = appendReason(sc.Reasons, "Strong overall match")
	}
	return sc, nil
}

// buildReasons produces user-facing explanations from the factor
// breakdown.
func buildReasons(c candidateContext, b ScoreBreakdown, cfg Config) []string {
	var reasons []string
	if c.distanceKm >= 0 && c.distanceKm <= cfg.MaxDistanceKm/2 {
		reasons = append(reasons, "Near you")
	}
	if b.Hobby >= 0.8 {
		reasons = append(reasons, "Matches your interests")
	} else if b.Hobby >= 0.6 {
		reasons = append(reasons, "Similar to your interests")
	}
	if b.HostTrust > 0.8 {
		reasons = append(reasons, "Highly rated host")
	}
	if c.event.AttendeeCount >= 100 {
		reasons = append(reasons, "Popular event")
	}
	if c.event.Price <= 0 {
		reasons = append(reasons, "Free to attend")
	}
	switch c.user.Tier {
	case TierGold:
		reasons = append(reasons, "Gold member perks available")
	case TierSilver:
		reasons = append(reasons, "Silver member perks available")
	}
	return reasons
}

// appendReason adds a reason if not already present.
func appendReason(reasons []string, r string) []string {
	for _, existing := range reasons {
		if existing == r {
			return reasons
		}
	}
	return append(reasons, r)
}
