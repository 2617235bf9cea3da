package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReindexCmd creates the reindex command for rebuilding the vector index.
func NewReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the resource store",
		Long: `Re-embed every stored resource and upsert it into the vector index.

Use after an index loss or after changing the embedding model. Upserts are
last-write-wins by resource ID, so reindexing a live index is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			indexed, err := rt.reindexer.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Reindexed %d resources\n", indexed)
			return nil
		},
	}
}
