// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Command server runs the MatchEngine HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kumele/matchengine/internal/api"
	"github.com/kumele/matchengine/internal/cache"
	"github.com/kumele/matchengine/internal/config"
	"github.com/kumele/matchengine/internal/database"
	"github.com/kumele/matchengine/internal/logging"
	"github.com/kumele/matchengine/internal/match"
	"github.com/kumele/matchengine/internal/metrics"
	"github.com/kumele/matchengine/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	seed := flag.Bool("seed", false, "load demo data on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration error")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	logging.Info().Str("addr", cfg.Addr()).Str("strategy", string(cfg.Match.Strategy)).Msg("starting matchengine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("database unavailable")
	}
	defer func() { _ = db.Close() }()

	if *seed {
		if err := seedDemoData(ctx, db); err != nil {
			logging.Fatal().Err(err).Msg("seeding failed")
		}
		logging.Info().Msg("demo data loaded")
	}

	m := metrics.New()

	recCache := cache.New(cfg.Cache)
	defer recCache.Stop()

	opts := []match.Option{
		match.WithCache(cache.NewInstrumented(recCache, m.CacheHits, m.CacheMisses)),
	}
	if cfg.Trust.BaseURL != "" {
		opts = append(opts, match.WithTrustProvider(
			upstream.NewTrustClient(cfg.Trust, m.ObserveBreaker)))
	}
	if cfg.VectorStore.BaseURL != "" {
		store := upstream.NewVectorStore(cfg.VectorStore, m.ObserveBreaker)
		opts = append(opts,
			match.WithEmbedder(match.NewModelEmbedder(store, cfg.Match.EmbeddingDim)),
			match.WithVectorSink(store))
	}

	engine := match.NewEngine(cfg.Match, database.NewMatchingDataProvider(db), opts...)

	geocoder := upstream.NewGeocoder(cfg.Geocoder, m.ObserveBreaker)
	server := api.NewServer(engine, geocoder, db, m)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Router(api.RouterConfig{RateLimit: cfg.Server.RateLimit, CORSOrigins: cfg.Server.CORSOrigins}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	logging.Info().Msg("shutdown complete")
}

// seedDemoData loads a small fixture set for local development.
func seedDemoData(ctx context.Context, db *database.DB) error {
	now := time.Now()
	berlin := match.Location{Latitude: 52.52, Longitude: 13.405}

	users := []match.UserProfile{
		{
			ID:       "demo-user",
			Location: &berlin,
			Hobbies: []match.Hobby{
				{Name: "hiking", Affinity: 0.9},
				{Name: "live music", Affinity: 0.6},
			},
			Interactions: []match.Interaction{
				{EventID: "demo-past", Type: "attend", Category: "outdoor", OccurredAt: now.Add(-72 * time.Hour)},
			},
			Tier:      match.TierSilver,
			CreatedAt: now.Add(-180 * 24 * time.Hour),
		},
		{
			ID:        "demo-new-user",
			Location:  &berlin,
			CreatedAt: now.Add(-time.Hour),
		},
	}
	for _, u := range users {
		if err := db.UpsertUser(ctx, u); err != nil {
			return err
		}
	}

	events := []match.EventRecord{
		{
			ID: "demo-hike", Title: "Grunewald Forest Hike", Category: "hiking",
			Tags:     []string{"outdoor", "beginner"},
			Location: &match.Location{Latitude: 52.49, Longitude: 13.26},
			HostID:   "host-1", Price: 0, Status: match.StatusActive,
			StartsAt: now.Add(48 * time.Hour), CreatedAt: now.Add(-24 * time.Hour), AttendeeCount: 18,
		},
		{
			ID: "demo-concert", Title: "Jazz Night", Category: "music",
			Tags:     []string{"live music", "jazz"},
			Location: &match.Location{Latitude: 52.53, Longitude: 13.42},
			HostID:   "host-2", Price: 25, Status: match.StatusActive,
			StartsAt: now.Add(24 * time.Hour), CreatedAt: now.Add(-48 * time.Hour), AttendeeCount: 140,
		},
		{
			ID: "demo-cooking", Title: "Pasta Workshop", Category: "cooking",
			Tags:     []string{"food", "hands-on"},
			Location: &match.Location{Latitude: 52.51, Longitude: 13.39},
			HostID:   "host-1", Price: 45, Status: match.StatusActive,
			StartsAt: now.Add(96 * time.Hour), CreatedAt: now.Add(-12 * time.Hour), AttendeeCount: 9,
		},
	}
	for _, e := range events {
		if err := db.UpsertEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
