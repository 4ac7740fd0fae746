package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/liran1305/Estimate-sub000/internal/middleware"
	"github.com/liran1305/Estimate-sub000/internal/services"
)

func newUsersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage the local user table"}
	var name string
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Create a user or rename an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.store.AddUser(cmd.Context(), services.User{ID: args[0], Name: name}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", args[0])
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	cmd.AddCommand(add)
	return cmd
}

func newRecomputeCmd(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [user-id]",
		Short: "Rebuild reputation aggregates from stored reviews",
		Args: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) || len(args) > 1 {
				return exitError(2, "pass exactly one of --all or a user id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			if !all {
				rep, err := a.scores.NormalizeAndAggregate(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", rep.RevieweeID, describe(rep))
				return nil
			}
			results, err := a.scores.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintf(out, "%s: error: %v\n", r.RevieweeID, r.Err)
				case r.NoData:
					fmt.Fprintf(out, "%s: no data\n", r.RevieweeID)
				default:
					fmt.Fprintf(out, "%s: ok\n", r.RevieweeID)
				}
			}
			if failed > 0 {
				return exitError(1, "%d of %d reviewee(s) failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "recompute every reviewee with at least one review")
	return cmd
}

func describe(rep *services.Reputation) string {
	if rep.NoData {
		return "no data"
	}
	return fmt.Sprintf("%d review(s), badge %s", rep.ReviewCount, rep.Badge)
}

func newViolationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "violations", Short: "Inspect or reset review-abuse state"}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <user-id>",
		Short: "Reset a user's violation counter and lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			// shell access to the database host stands in for the admin key here
			n, err := a.violations.AdminClear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d violation(s) for %s\n", n, args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list <user-id>",
		Short: "Show a user's lockout state and violation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.violations.CheckLockout(ctx, args[0])
			if err != nil {
				return err
			}
			recs, err := a.store.ListViolations(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if st.IsLockedOut {
				fmt.Fprintf(out, "locked until %s (%dh left), count %d\n", st.LockedUntil.Format(time.RFC3339), st.RemainingHours, st.ViolationCount)
			} else {
				fmt.Fprintf(out, "not locked, count %d\n", st.ViolationCount)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OCCURRED\tTYPE\tSESSION\tSECONDS")
			for _, r := range recs {
				secs := "-"
				if r.TimeSpentSeconds != nil {
					secs = fmt.Sprint(*r.TimeSpentSeconds)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.OccurredAt.Format(time.RFC3339), r.ViolationType, r.ReviewSessionID, secs)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newScoresCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "scores", Short: "Read persisted dimension scores"}
	var (
		outPath string
		wide    bool
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Write dimension scores as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			rows, err := a.scores.ExportScores(cmd.Context())
			if err != nil {
				return err
			}
			var b []byte
			if wide {
				b, err = services.ExportLevelsWideCSV(rows)
			} else {
				b, err = services.ExportScoresCSV(rows)
			}
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(outPath, b, 0o644)
		},
	}
	export.Flags().StringVar(&outPath, "out", "", "output file (default: stdout)")
	export.Flags().BoolVar(&wide, "wide", false, "one row per reviewee with a level column per dimension")
	cmd.AddCommand(export)
	return cmd
}

func newCountersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "counters", Short: "Maintain daily review counters"}
	var keepDays int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete daily counters older than --keep-days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keepDays < 1 {
				return exitError(2, "--keep-days must be at least 1")
			}
			a, err := openApp(cmd.Context(), c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			before := time.Now().UTC().AddDate(0, 0, -keepDays).Format("2006-01-02")
			n, err := a.store.PruneCounters(cmd.Context(), before)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d counter row(s) before %s\n", n, before)
			return nil
		},
	}
	prune.Flags().IntVar(&keepDays, "keep-days", 2, "days of counters to keep")
	cmd.AddCommand(prune)
	return cmd
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.settings.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	})
	return cmd
}

func newAdminCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Operator credential helpers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash to configure as admin.key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := services.HashAdminKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	})
	return cmd
}

func newDevTokenCmd(c *cli) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "dev-token <user-id>",
		Short: "Mint a session JWT for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(c.settings.Auth.JWTSecret) == "" {
				return exitError(2, "auth.jwt_secret is not set")
			}
			sessions, err := middleware.NewSessions(c.settings.Auth.JWTSecret)
			if err != nil {
				return err
			}
			tok, err := sessions.SignToken(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
