package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/liran1305/Estimate-sub000/internal/api"
	"github.com/liran1305/Estimate-sub000/internal/config"
	dbstore "github.com/liran1305/Estimate-sub000/internal/db"
	"github.com/liran1305/Estimate-sub000/internal/metrics"
	"github.com/liran1305/Estimate-sub000/internal/services"
)

// app is the wired service graph shared by serve and the operator commands.
type app struct {
	settings    *config.Settings
	log         *slog.Logger
	db          *sql.DB
	store       *dbstore.SQLiteStore
	registry    *prometheus.Registry
	scores      *services.ScoreService
	violations  *services.ViolationService
	tokens      *services.TokenService
	submissions *services.SubmissionService
	admin       *services.AdminService
}

// openApp opens and migrates the database, then wires every service.
func openApp(ctx context.Context, s *config.Settings, log *slog.Logger) (*app, error) {
	db, err := dbstore.Open(s.Database.Path)
	if err != nil {
		return nil, err
	}
	applied, err := dbstore.RunMigrations(ctx, db, s.Database.MigrationsDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "files", applied)
	}
	store, err := dbstore.NewSQLiteStore(db, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{settings: s, log: log, db: db, store: store, registry: reg}
	a.scores = services.NewScoreService(store, m, log, s.Cache.TTL)
	a.violations = services.NewViolationService(store, m, log)
	if s.Tokens.Secret != "" {
		hasher, err := services.NewHasher(s.Tokens.Secret)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		limits := services.TokenLimits{
			TTL:            s.Tokens.TTL,
			MaxPending:     s.Tokens.MaxPending,
			ReviewerPerDay: s.Limits.ReviewerPerDay,
			RevieweePerDay: s.Limits.RevieweePerDay,
		}
		a.tokens = services.NewTokenService(store, hasher, limits, a.violations, m, log)
		a.submissions = services.NewSubmissionService(store, a.tokens, a.violations, a.scores, m, log).
			WithMinSeconds(s.Review.MinSeconds)
		if s.Review.TurnstileSecret != "" {
			a.submissions.WithTurnstile(api.NewTurnstileVerifier(s.Review.TurnstileSecret, "", nil))
		}
	}
	a.admin = services.NewAdminService(s.Admin.KeyHash, a.violations, a.scores)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
