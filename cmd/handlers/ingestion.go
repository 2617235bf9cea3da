package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewIngestionCmd creates the ingestion command for running the pipeline
// outside the scheduler.
func NewIngestionCmd() *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "ingestion",
		Short: "Run one source ingestion pass immediately",
		Long: `Run the source ingestion pipeline once and exit: fetch every active
source, extract candidate resources, deduplicate by URL, persist new
resources, and mirror them into the vector index.

Examples:
  curio ingestion
  curio ingestion --source 7c0e7cbf-9c3e-4f53-9d2b-0a1f8a2f4b11`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestionOnce(cmd.Context(), sourceID)
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Ingest only the source with this ID")

	return cmd
}

func runIngestionOnce(ctx context.Context, sourceID string) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if sourceID != "" {
		stats, err := rt.ingestion.RunSource(ctx, sourceID)
		if err != nil {
			return err
		}
		fmt.Printf("Source ingested: candidates=%d added=%d duplicates=%d indexed=%d\n",
			stats.Candidates, stats.Added, stats.Duplicates, stats.Indexed)
		return nil
	}

	return rt.runIngestion(ctx, nowUTC())
}
