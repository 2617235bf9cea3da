package handlers

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"curio/internal/config"
	"curio/internal/state"
)

// NewStatusCmd creates the status command showing recent job runs.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent job runs from the local state database",
		Long: `Show the run history the scheduler uses to decide what is due. Reads
only the local state database; no network access needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Runs to show per job")

	return cmd
}

func runStatus(limit int) error {
	cfg := config.Get()
	store, err := state.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "JOB\tFINISHED\tSTATUS\tDURATION\tCOUNTERS\n")

	for _, job := range []string{"ingestion", "feed"} {
		runs, err := store.RecentRuns(job, limit)
		if err != nil {
			return fmt.Errorf("read runs for %s: %w", job, err)
		}
		if len(runs) == 0 {
			fmt.Fprintf(w, "%s\tnever\t-\t-\t-\n", job)
			continue
		}
		for _, run := range runs {
			status := "ok"
			if !run.Success {
				status = "FAILED"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				run.Job,
				run.FinishedAt.Format("2006-01-02 15:04:05"),
				status,
				run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
				formatCounters(run.Counters),
			)
		}
	}

	return w.Flush()
}

func formatCounters(counters map[string]int) string {
	if len(counters) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counters[k])
	}
	return strings.Join(parts, " ")
}
