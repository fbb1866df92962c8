// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

package database

import (
	"context"
	"fmt"

	"github.com/kumele/matchengine/internal/match"
)

// UpsertUser writes a full user profile: base row, hobbies, blog topics
// and interactions. Existing per-user detail rows are replaced.
func (db *DB) UpsertUser(ctx context.Context, u match.UserProfile) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id required", match.ErrInvalidInput)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lat, lon any
	if u.Location != nil {
		lat, lon = u.Location.Latitude, u.Location.Longitude
	}
	tier := u.Tier
	if !tier.Valid() {
		tier = match.TierNone
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, u.ID); err != nil {
		return wrapErr("replace user", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, latitude, longitude, tier, age_bracket, gender,
		                   ad_clicks, ad_conversions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, lat, lon, string(tier), nullable(u.AgeBracket), nullable(u.Gender),
		u.Ads.Clicks, u.Ads.Conversions, u.CreatedAt); err != nil {
		return wrapErr("insert user", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_hobbies WHERE user_id = ?`, u.ID); err != nil {
		return wrapErr("clear hobbies", err)
	}
	for _, h := range u.Hobbies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_hobbies (user_id, name, affinity) VALUES (?, ?, ?)`,
			u.ID, h.Name, h.Affinity); err != nil {
			return wrapErr("insert hobby", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_blog_topics WHERE user_id = ?`, u.ID); err != nil {
		return wrapErr("clear blog topics", err)
	}
	for _, topic := range u.BlogTopics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_blog_topics (user_id, topic) VALUES (?, ?)`,
			u.ID, topic); err != nil {
			return wrapErr("insert blog topic", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_interactions WHERE user_id = ?`, u.ID); err != nil {
		return wrapErr("clear interactions", err)
	}
	for _, in := range u.Interactions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_interactions (user_id, event_id, type, category, occurred_at)
			VALUES (?, ?, ?, ?, ?)`,
			u.ID, in.EventID, in.Type, nullable(in.Category), in.OccurredAt); err != nil {
			return wrapErr("insert interaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit user", err)
	}
	return nil
}

// UpsertEvent writes an event and its tags, replacing any previous
// version.
func (db *DB) UpsertEvent(ctx context.Context, e match.EventRecord) error {
	if e.ID == "" {
		return fmt.Errorf("%w: event id required", match.ErrInvalidInput)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lat, lon any
	if e.Location != nil {
		lat, lon = e.Location.Latitude, e.Location.Longitude
	}
	status := e.Status
	if status == "" {
		status = match.StatusActive
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, e.ID); err != nil {
		return wrapErr("replace event", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, title, category, latitude, longitude, host_id,
		                    price, status, starts_at, created_at, attendee_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Category, lat, lon, e.HostID,
		e.Price, string(status), e.StartsAt, e.CreatedAt, e.AttendeeCount); err != nil {
		return wrapErr("insert event", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, e.ID); err != nil {
		return wrapErr("clear tags", err)
	}
	for _, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_tags (event_id, tag) VALUES (?, ?)`, e.ID, tag); err != nil {
			return wrapErr("insert tag", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit event", err)
	}
	return nil
}

// RecordInteraction appends one interaction to a user's history.
func (db *DB) RecordInteraction(ctx context.Context, userID string, in match.Interaction) error {
	if userID == "" || in.EventID == "" {
		return fmt.Errorf("%w: user id and event id required", match.ErrInvalidInput)
	}
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO user_interactions (user_id, event_id, type, category, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, in.EventID, in.Type, nullable(in.Category), in.OccurredAt)
	if err != nil {
		return wrapErr("record interaction", err)
	}
	return nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
