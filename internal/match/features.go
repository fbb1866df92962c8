// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package match

import (
	"strings"
)

// defaultHobbies seeds hobby recommendations for users with no stated
// interests.
var defaultHobbies = []string{
	"hiking", "photography", "cooking", "reading", "yoga",
	"running", "painting", "board games", "live music", "volunteering",
}

// DefaultHobbies returns the fallback hobby list used for cold-start
// hobby recommendations. The returned slice is a copy.
func DefaultHobbies() []Hobby {
	out := make([]Hobby, len(defaultHobbies))
	for i, name := range defaultHobbies {
		out[i] = Hobby{Name: name, Affinity: 0.5}
	}
	return out
}

// TermList is a weighted bag of feature terms for one tower facet.
// Term repetition encodes weight: a term appearing three times carries
// three times the mass in the hash embedding.
type TermList struct {
	// Facet names the feature group, e.g. "hobbies".
	Facet string

	// Terms are the lowercased feature tokens, repeats included.
	Terms []string
}

// FeatureBundle is the full term-list set for one embedding tower.
type FeatureBundle struct {
	// Subject identifies the user or event the bundle describes.
	Subject string

	// Lists are the per-facet term lists in tower order.
	Lists []TermList
}

// AllTerms flattens the bundle into a single term slice, preserving
// facet order.
func (b FeatureBundle) AllTerms() []string {
	var out []string
	for _, l := range b.Lists {
		out = append(out, l.Terms...)
	}
	return out
}

// IsEmpty reports whether no facet produced any terms.
func (b FeatureBundle) IsEmpty() bool {
	for _, l := range b.Lists {
		if len(l.Terms) > 0 {
			return false
		}
	}
	return true
}

// tierTermRepeats maps a reward tier to the repetition count of its
// feature term. Derived from tier weights scaled by ten.
func tierTermRepeats(t RewardTier) int {
	switch t {
	case TierBronze:
		return 4
	case TierSilver:
		return 7
	case TierGold:
		return 10
	default:
		return 1
	}
}

// hobbyTermRepeats converts an affinity score into a repetition count,
// at least one.
func hobbyTermRepeats(affinity float64) int {
	n := int(affinity * 3)
	if n < 1 {
		n = 1
	}
	return n
}

// repeatTerm appends term to dst n times.
func repeatTerm(dst []string, term string, n int) []string {
	for i := 0; i < n; i++ {
		dst = append(dst, term)
	}
	return dst
}

// normalizeTerm lowercases and trims a feature token.
func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UserFeatures extracts the user-tower feature bundle from a profile.
//
// Facets in tower order: hobbies, engagement, demographics, rewards,
// blog, ads. Empty facets receive a "general" placeholder so the hash
// embedding never collapses to the zero vector.
func UserFeatures(u UserProfile) FeatureBundle {
	b := FeatureBundle{Subject: u.ID}

	hobbies := TermList{Facet: "hobbies"}
	for _, h := range u.Hobbies {
		term := normalizeTerm(h.Name)
		if term == "" {
			continue
		}
		hobbies.Terms = repeatTerm(hobbies.Terms, term, hobbyTermRepeats(h.Affinity))
	}

	engagement := TermList{Facet: "engagement"}
	for _, in := range u.Interactions {
		if !in.Attended() {
			continue
		}
		if cat := normalizeTerm(in.Category); cat != "" {
			engagement.Terms = append(engagement.Terms, cat)
		}
	}

	demographics := TermList{Facet: "demographics"}
	if u.AgeBracket != "" {
		demographics.Terms = append(demographics.Terms, "age_"+normalizeTerm(u.AgeBracket))
	}
	if u.Gender != "" {
		demographics.Terms = append(demographics.Terms, "gender_"+normalizeTerm(u.Gender))
	}

	rewards := TermList{Facet: "rewards"}
	tier := u.Tier
	if !tier.Valid() {
		tier = TierNone
	}
	rewards.Terms = repeatTerm(rewards.Terms, "tier_"+string(tier), tierTermRepeats(tier))

	blog := TermList{Facet: "blog"}
	for _, topic := range u.BlogTopics {
		if t := normalizeTerm(topic); t != "" {
			blog.Terms = append(blog.Terms, t)
		}
	}

	ads := TermList{Facet: "ads"}
	switch {
	case u.Ads.Conversions > 0:
		ads.Terms = repeatTerm(ads.Terms, "ads_converted", 2)
	case u.Ads.Clicks > 0:
		ads.Terms = append(ads.Terms, "ads_interested")
	default:
		ads.Terms = append(ads.Terms, "no_ads")
	}

	b.Lists = []TermList{hobbies, engagement, demographics, rewards, blog, ads}
	fillEmptyFacets(b.Lists)
	return b
}

// EventFeatures extracts the event-tower feature bundle from an event
// and its host's trust score.
//
// Facets in tower order: category, tags, host_rating, engagement,
// price_tier.
func EventFeatures(e EventRecord, trust *HostTrustScore) FeatureBundle {
	b := FeatureBundle{Subject: e.ID}

	category := TermList{Facet: "category"}
	if c := normalizeTerm(e.Category); c != "" {
		category.Terms = append(category.Terms, c)
	}

	tags := TermList{Facet: "tags"}
	for _, t := range e.Tags {
		if term := normalizeTerm(t); term != "" {
			tags.Terms = append(tags.Terms, term)
		}
	}

	hostRating := TermList{Facet: "host_rating"}
	hostRating.Terms = append(hostRating.Terms, ratingBucket(trust))

	engagement := TermList{Facet: "engagement"}
	engagement.Terms = append(engagement.Terms, popularityBucket(e.AttendeeCount))

	priceTier := TermList{Facet: "price_tier"}
	priceTier.Terms = append(priceTier.Terms, "price_"+e.PriceTier())

	b.Lists = []TermList{category, tags, hostRating, engagement, priceTier}
	fillEmptyFacets(b.Lists)
	return b
}

// ratingBucket coarsens a host rating into a feature term.
func ratingBucket(trust *HostTrustScore) string {
	if trust == nil || trust.ReviewCount == 0 {
		return "rating_unrated"
	}
	switch {
	case trust.Rating >= 4.5:
		return "rating_excellent"
	case trust.Rating >= 3.5:
		return "rating_good"
	case trust.Rating >= 2.5:
		return "rating_average"
	default:
		return "rating_poor"
	}
}

// popularityBucket coarsens an attendee count into a feature term.
func popularityBucket(attendees int) string {
	switch {
	case attendees >= 100:
		return "popularity_high"
	case attendees >= 20:
		return "popularity_medium"
	default:
		return "popularity_low"
	}
}

// fillEmptyFacets replaces empty term lists with a "general" placeholder
// in place.
func fillEmptyFacets(lists []TermList) {
	for i := range lists {
		if len(lists[i].Terms) == 0 {
			lists[i].Terms = []string{"general"}
		}
	}
}
