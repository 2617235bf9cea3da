package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"curio/internal/core"
	"curio/internal/embedding"
	"curio/internal/persistence"
	"curio/internal/vectorstore"
)

// DefaultReindexChunk bounds how many resources are embedded per API round
// trip during a full rebuild.
const DefaultReindexChunk = 50

// Reindexer rebuilds the vector index from the resource store. Used for
// disaster recovery and after changing the embedding model or dimension.
type Reindexer struct {
	resources persistence.ResourceRepository
	embedder  embedding.Embedder
	index     vectorstore.Index
	chunk     int
}

// NewReindexer creates a Reindexer embedding chunkSize resources per round
// trip; chunkSize <= 0 selects the default.
func NewReindexer(resources persistence.ResourceRepository, embedder embedding.Embedder, index vectorstore.Index, chunkSize int) *Reindexer {
	if chunkSize <= 0 {
		chunkSize = DefaultReindexChunk
	}
	return &Reindexer{resources: resources, embedder: embedder, index: index, chunk: chunkSize}
}

// Run re-embeds every stored resource and upserts it into the index. Upserts
// are last-write-wins by resource ID, so running against a live index is safe.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	started := time.Now()

	resources, err := r.resources.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: load resources: %w", err)
	}
	if len(resources) == 0 {
		log.Info().Msg("Reindex found no resources")
		return 0, nil
	}

	log.Info().Int("resources", len(resources)).Msg("Reindex started")

	indexed := 0
	for start := 0; start < len(resources); start += r.chunk {
		if err := ctx.Err(); err != nil {
			return indexed, fmt.Errorf("reindex: %w", err)
		}
		end := start + r.chunk
		if end > len(resources) {
			end = len(resources)
		}
		chunk := resources[start:end]

		texts := make([]string, len(chunk))
		for i, resource := range chunk {
			texts[i] = core.EmbeddingText(resource.Title, resource.Description)
		}
		vectors, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("reindex: embed chunk at %d: %w", start, err)
		}

		docs := make([]core.VectorDocument, len(chunk))
		for i, resource := range chunk {
			docs[i] = vectorDocument(resource, vectors[i])
		}
		n, err := r.index.Upsert(ctx, docs)
		indexed += n
		if err != nil {
			return indexed, fmt.Errorf("reindex: upsert chunk at %d: %w", start, err)
		}
	}

	log.Info().
		Int("indexed", indexed).
		Dur("elapsed", time.Since(started)).
		Msg("Reindex finished")

	return indexed, nil
}
