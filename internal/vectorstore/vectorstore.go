// Package vectorstore mirrors resources into a pgvector-backed index and
// serves filtered cosine-similarity search for the recommendation engine.
package vectorstore

import (
	"context"
	"time"

	"curio/internal/core"
)

// Index is the vector index over resource embeddings. Documents are keyed by
// resource ID; upserts are last-write-wins per document.
type Index interface {
	// Initialize idempotently creates the index schema. Safe to call on
	// every worker start.
	Initialize(ctx context.Context) error

	// Upsert writes documents by ID. Per-document failures are reported in
	// the returned count but do not abort the batch; the error is non-nil
	// only when the whole batch is unusable.
	Upsert(ctx context.Context, docs []core.VectorDocument) (int, error)

	// Delete removes a document by ID. Absent IDs succeed silently.
	Delete(ctx context.Context, id string) error

	// Search returns up to req.K results ordered by similarity, highest
	// first, after applying the request filters and exclusions.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)

	// Count returns the total number of indexed documents.
	Count(ctx context.Context) (int64, error)
}

// SearchRequest configures one vector search.
type SearchRequest struct {
	// Vector is the query embedding. Its dimension must match the index.
	Vector []float64

	// K is the hard upper bound on returned results.
	K int

	// Kind filters to a single resource kind when set.
	Kind core.ResourceKind

	// SourceIDs filters to documents from the given sources when non-empty.
	SourceIDs []string

	// PublishedAfter / PublishedBefore bound the published_date field.
	// Zero values leave the bound open.
	PublishedAfter  time.Time
	PublishedBefore time.Time

	// ExcludeIDs removes specific documents before results are returned.
	ExcludeIDs []string
}

// SearchResult is one match. Score is cosine similarity mapped to [0,1];
// callers should rely on monotonicity only, not the absolute scale.
type SearchResult struct {
	ID    string
	Score float64
}
