package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	dbstore "github.com/liran1305/Estimate-sub000/internal/db"
	"github.com/liran1305/Estimate-sub000/internal/services"
)

// legacySnapshot is the JSON export of the previous review system: users plus
// schema 1 reviews scored 0..10 per named skill.
type legacySnapshot struct {
	Users   []snapshotUser   `json:"users"`
	Reviews []snapshotReview `json:"reviews"`
}

type snapshotUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type snapshotReview struct {
	ID              string                `json:"id"`
	RevieweeID      string                `json:"reviewee_id"`
	InteractionType string                `json:"interaction_type"`
	Scores          services.LegacyScores `json:"scores"`
	WouldWorkAgain  *int                  `json:"would_work_again"`
	WouldPromote    *int                  `json:"would_promote"`
	StrengthTags    []string              `json:"strength_tags"`
	FreeText        map[string]*string    `json:"free_text"`
	CreatedAt       time.Time             `json:"created_at"`
}

func newMigrateCmd(c *cli) *cobra.Command {
	var snapshotPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and optionally import a legacy snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			if snapshotPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			imported, err := importIfEmpty(ctx, a, snapshotPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d reviewee(s)\n", imported)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "import", "", "legacy JSON snapshot to seed an empty database with")
	return cmd
}

func loadSnapshot(path string) (*legacySnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap legacySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// importIfEmpty seeds the database once. A database that already holds reviews
// is left alone. It returns the number of reviewees recomputed.
func importIfEmpty(ctx context.Context, a *app, snapshotPath string) (int, error) {
	existing, err := a.store.ListRevieweeIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("check existing reviews: %w", err)
	}
	if len(existing) > 0 {
		a.log.Info("database already holds reviews; skipping import", "reviewees", len(existing))
		return 0, nil
	}
	snap, err := loadSnapshot(snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, exitError(3, "snapshot %s not found", snapshotPath)
		}
		return 0, err
	}

	a.log.Info("importing legacy snapshot", "path", snapshotPath, "users", len(snap.Users), "reviews", len(snap.Reviews))
	if err := copySnapshotToStore(ctx, snap, a.store); err != nil {
		return 0, fmt.Errorf("copy data: %w", err)
	}
	results, err := a.scores.RecomputeAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		if r.Err != nil {
			return 0, fmt.Errorf("recompute %s: %w", r.RevieweeID, r.Err)
		}
	}
	a.log.Info("legacy import completed", "reviewees", len(results))
	return len(results), nil
}

func copySnapshotToStore(ctx context.Context, snap *legacySnapshot, dst *dbstore.SQLiteStore) error {
	for _, u := range snap.Users {
		if strings.TrimSpace(u.ID) == "" {
			continue
		}
		if err := dst.AddUser(ctx, services.User{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	for _, r := range snap.Reviews {
		review := services.RawReview{
			ReviewMeta: services.ReviewMeta{
				ID:              r.ID,
				Source:          services.SourceLegacy,
				RevieweeID:      r.RevieweeID,
				InteractionType: r.InteractionType,
				WouldWorkAgain:  r.WouldWorkAgain,
				WouldPromote:    r.WouldPromote,
				StrengthTags:    r.StrengthTags,
				FreeText:        r.FreeText,
				CreatedAt:       r.CreatedAt,
			},
			Body: r.Scores,
		}
		if err := dst.ImportLegacyReview(ctx, review); err != nil {
			return fmt.Errorf("review %s: %w", r.ID, err)
		}
	}
	return nil
}
