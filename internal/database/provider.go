// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kumele/matchengine/internal/match"
)

// interactionLookback bounds how much history is loaded per profile.
// Engagement scoring only looks back 90 days; loading twice that keeps
// the cold-start check meaningful without dragging in years of rows.
const interactionLookback = 180 * 24 * time.Hour

// MatchingDataProvider adapts DuckDB storage to the engine's
// DataProvider interface.
type MatchingDataProvider struct {
	db *DB
}

var _ match.DataProvider = (*MatchingDataProvider)(nil)

// NewMatchingDataProvider wraps a DB as a DataProvider.
func NewMatchingDataProvider(db *DB) *MatchingDataProvider {
	return &MatchingDataProvider{db: db}
}

// wrapErr classifies driver errors as upstream failures so the engine's
// error taxonomy holds across the storage boundary.
func wrapErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", match.ErrUpstreamUnavailable, op, err)
}

// User implements match.DataProvider.
func (p *MatchingDataProvider) User(ctx context.Context, userID string) (match.UserProfile, error) {
	var (
		u        match.UserProfile
		lat, lon sql.NullFloat64
		tier     string
		age, gen sql.NullString
	)
	err := p.db.sql.QueryRowContext(ctx, `
		SELECT id, latitude, longitude, tier, age_bracket, gender,
		       ad_clicks, ad_conversions, created_at
		FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &lat, &lon, &tier, &age, &gen,
			&u.Ads.Clicks, &u.Ads.Conversions, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return match.UserProfile{}, fmt.Errorf("%w: user %s", match.ErrNotFound, userID)
	}
	if err != nil {
		return match.UserProfile{}, wrapErr("load user", err)
	}

	if lat.Valid && lon.Valid {
		u.Location = &match.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	u.Tier = match.RewardTier(tier)
	u.AgeBracket = age.String
	u.Gender = gen.String

	if u.Hobbies, err = p.hobbies(ctx, userID); err != nil {
		return match.UserProfile{}, err
	}
	if u.BlogTopics, err = p.blogTopics(ctx, userID); err != nil {
		return match.UserProfile{}, err
	}
	if u.Interactions, err = p.interactions(ctx, userID); err != nil {
		return match.UserProfile{}, err
	}
	return u, nil
}

func (p *MatchingDataProvider) hobbies(ctx context.Context, userID string) ([]match.Hobby, error) {
	rows, err := p.db.sql.QueryContext(ctx, `
		SELECT name, affinity FROM user_hobbies
		WHERE user_id = ? ORDER BY affinity DESC, name`, userID)
	if err != nil {
		return nil, wrapErr("load hobbies", err)
	}
	defer rows.Close()

	var out []match.Hobby
	for rows.Next() {
		var h match.Hobby
		if err := rows.Scan(&h.Name, &h.Affinity); err != nil {
			return nil, wrapErr("scan hobby", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *MatchingDataProvider) blogTopics(ctx context.Context, userID string) ([]string, error) {
	rows, err := p.db.sql.QueryContext(ctx, `
		SELECT topic FROM user_blog_topics WHERE user_id = ? ORDER BY topic`, userID)
	if err != nil {
		return nil, wrapErr("load blog topics", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, wrapErr("scan blog topic", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *MatchingDataProvider) interactions(ctx context.Context, userID string) ([]match.Interaction, error) {
	cutoff := time.Now().Add(-interactionLookback)
	rows, err := p.db.sql.QueryContext(ctx, `
		SELECT event_id, type, category, occurred_at
		FROM user_interactions
		WHERE user_id = ? AND occurred_at > ?
		ORDER BY occurred_at DESC`, userID, cutoff)
	if err != nil {
		return nil, wrapErr("load interactions", err)
	}
	defer rows.Close()

	var out []match.Interaction
	for rows.Next() {
		var (
			in  match.Interaction
			cat sql.NullString
		)
		if err := rows.Scan(&in.EventID, &in.Type, &cat, &in.OccurredAt); err != nil {
			return nil, wrapErr("scan interaction", err)
		}
		in.Category = cat.String
		out = append(out, in)
	}
	return out, rows.Err()
}

// CandidateEvents implements match.DataProvider. Only active upcoming
// events are returned, soonest first.
func (p *MatchingDataProvider) CandidateEvents(ctx context.Context, f match.CandidateFilter) ([]match.EventRecord, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`
		SELECT id, title, category, latitude, longitude, host_id,
		       price, status, starts_at, created_at, attendee_count
		FROM events
		WHERE status IN ('active', 'scheduled', 'ongoing')`)

	if !f.Now.IsZero() {
		sb.WriteString(" AND starts_at > ?")
		args = append(args, f.Now)
	}
	if len(f.Categories) > 0 {
		sb.WriteString(" AND category IN (")
		for i, c := range f.Categories {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, c)
		}
		sb.WriteString(")")
	}
	sb.WriteString(" ORDER BY starts_at")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := p.db.sql.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrapErr("load candidates", err)
	}
	defer rows.Close()

	var events []match.EventRecord
	ids := make([]string, 0, 16)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate candidates", err)
	}

	tags, err := p.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Tags = tags[events[i].ID]
	}
	return events, nil
}

// Event implements match.DataProvider.
func (p *MatchingDataProvider) Event(ctx context.Context, eventID string) (match.EventRecord, error) {
	row := p.db.sql.QueryRowContext(ctx, `
		SELECT id, title, category, latitude, longitude, host_id,
		       price, status, starts_at, created_at, attendee_count
		FROM events WHERE id = ?`, eventID)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return match.EventRecord{}, fmt.Errorf("%w: event %s", match.ErrNotFound, eventID)
	}
	if err != nil {
		return match.EventRecord{}, err
	}

	tags, err := p.tagsFor(ctx, []string{eventID})
	if err != nil {
		return match.EventRecord{}, err
	}
	e.Tags = tags[eventID]
	return e, nil
}

// UserIDs implements match.DataProvider.
func (p *MatchingDataProvider) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.sql.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list users", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan user id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (match.EventRecord, error) {
	var (
		e        match.EventRecord
		lat, lon sql.NullFloat64
		status   string
	)
	err := s.Scan(&e.ID, &e.Title, &e.Category, &lat, &lon, &e.HostID,
		&e.Price, &status, &e.StartsAt, &e.CreatedAt, &e.AttendeeCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return match.EventRecord{}, err
		}
		return match.EventRecord{}, wrapErr("scan event", err)
	}
	if lat.Valid && lon.Valid {
		e.Location = &match.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	e.Status = match.EventStatus(status)
	return e, nil
}

// tagsFor loads tags for a set of events in one query.
func (p *MatchingDataProvider) tagsFor(ctx context.Context, eventIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventIDs)), ", ")
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}

	rows, err := p.db.sql.QueryContext(ctx,
		`SELECT event_id, tag FROM event_tags WHERE event_id IN (`+placeholders+`) ORDER BY tag`, args...)
	if err != nil {
		return nil, wrapErr("load tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, wrapErr("scan tag", err)
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}
