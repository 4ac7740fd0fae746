package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liran1305/Estimate-sub000/internal/api"
	"github.com/liran1305/Estimate-sub000/internal/middleware"
	"github.com/liran1305/Estimate-sub000/internal/utils"
)

// counterRetention keeps yesterday's counters around for late submissions
// crossing midnight.
const counterRetention = 2 * 24 * time.Hour

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.settings.Validate(); err != nil {
				return exitError(2, "invalid config:\n%v", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c)
		},
	}
}

func runServe(ctx context.Context, c *cli) error {
	s := c.settings
	a, err := openApp(ctx, s, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			c.log.Warn("close database", "error", cerr)
		}
	}()

	sessions, err := middleware.NewSessions(s.Auth.JWTSecret)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(s.HTTP.RateLimitRPS, s.HTTP.RateLimitBurst)
	router := api.NewRouter(api.Deps{
		Scores:      a.scores,
		Violations:  a.violations,
		Tokens:      a.tokens,
		Submissions: a.submissions,
		Admin:       a.admin,
		Sessions:    sessions,
		Limiter:     limiter,
		Gatherer:    a.registry,
		Build:       utils.ReadBuildInfo(version, commit, buildTime),
		CORS:        s.HTTP.CORS,
		Log:         c.log,
	})

	srv := &http.Server{
		Addr:              s.Server.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, a, limiter)

	errCh := make(chan error, 1)
	go func() {
		c.log.Info("listening", "addr", s.Server.Addr, "dev", s.Dev)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	c.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runJanitor drops idle rate-limit buckets and stale daily counters until ctx ends.
func runJanitor(ctx context.Context, a *app, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Prune()
			before := now.UTC().Add(-counterRetention).Format("2006-01-02")
			n, err := a.store.PruneCounters(ctx, before)
			if err != nil {
				a.log.Warn("prune counters", "error", err)
				continue
			}
			if n > 0 {
				a.log.Debug("pruned counters", "rows", n, "before", before)
			}
		}
	}
}
