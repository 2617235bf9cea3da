package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"curio/internal/core"
)

// NewFeedCmd creates the feed command for generating daily feeds on demand.
func NewFeedCmd() *cobra.Command {
	var (
		dateStr string
		userID  string
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Generate daily recommendation feeds immediately",
		Long: `Generate per-user daily feeds once and exit. Feeds are idempotent per
(user, feed type, day): already-generated feeds are left untouched.

Examples:
  curio feed
  curio feed --date 2026-08-25
  curio feed --user 4f1c2f3a-0b5d-4a0e-8f4a-2d9c1e7b6a55`,
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().UTC()
			if dateStr != "" {
				parsed, err := time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", dateStr, err)
				}
				date = parsed
			}
			return runFeedOnce(cmd.Context(), userID, date)
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "Civil day to generate feeds for (YYYY-MM-DD, default today UTC)")
	cmd.Flags().StringVar(&userID, "user", "", "Generate feeds only for the user with this ID")

	return cmd
}

func runFeedOnce(ctx context.Context, userID string, date time.Time) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if userID != "" {
		recs := rt.generator.GenerateAll(ctx, userID, date, rt.cfg.Feeds.PerFeedCount)
		fmt.Printf("Generated %d recommendations for user %s on %s\n",
			len(recs), userID, core.CivilDay(date).Format("2006-01-02"))
		return nil
	}

	return rt.runFeeds(ctx, date)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
