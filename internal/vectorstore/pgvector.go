package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"curio/internal/core"
)

// PgVector implements Index on PostgreSQL with the pgvector extension.
// Cosine distance (<=>) drives similarity; an HNSW index keeps search
// approximate but fast at production scale.
type PgVector struct {
	db         *sql.DB
	dimensions int
}

// NewPgVector creates a pgvector-backed index. dimensions must match the
// embedding model output.
func NewPgVector(db *sql.DB, dimensions int) *PgVector {
	return &PgVector{db: db, dimensions: dimensions}
}

// Initialize creates the extension, table, and HNSW index if they do not
// exist yet.
func (p *PgVector) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS vector_documents (
				id UUID PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				url TEXT NOT NULL,
				kind TEXT NOT NULL,
				source_id UUID,
				published_date TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				embedding VECTOR(%d) NOT NULL
			)`, p.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_vector_documents_kind ON vector_documents (kind)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_documents_published ON vector_documents (published_date)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vectorstore: initialize: %w", err)
		}
	}
	return p.createHNSWIndex(ctx)
}

// createHNSWIndex builds the approximate nearest neighbor index once.
// CREATE INDEX IF NOT EXISTS is avoided for HNSW because a failed build can
// leave an invalid index behind; the pg_indexes check mirrors that caution.
func (p *PgVector) createHNSWIndex(ctx context.Context) error {
	var exists bool
	checkQuery := `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'vector_documents'
			AND indexname = 'idx_vector_documents_embedding_hnsw'
		)
	`
	if err := p.db.QueryRowContext(ctx, checkQuery).Scan(&exists); err != nil {
		return fmt.Errorf("vectorstore: check HNSW index: %w", err)
	}
	if exists {
		return nil
	}

	indexQuery := `
		CREATE INDEX idx_vector_documents_embedding_hnsw
		ON vector_documents
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)
	`
	if _, err := p.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("vectorstore: create HNSW index: %w", err)
	}
	return nil
}

// Upsert writes documents by ID, last write wins. A document that fails is
// logged and skipped; the batch continues.
func (p *PgVector) Upsert(ctx context.Context, docs []core.VectorDocument) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO vector_documents (
			id, title, description, url, kind, source_id,
			published_date, created_at, updated_at, embedding
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, CAST($10 AS VECTOR(%d)))
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			kind = EXCLUDED.kind,
			source_id = EXCLUDED.source_id,
			published_date = EXCLUDED.published_date,
			updated_at = EXCLUDED.updated_at,
			embedding = EXCLUDED.embedding
	`, p.dimensions)

	upserted := 0
	for _, doc := range docs {
		if len(doc.Embedding) != p.dimensions {
			log.Error().
				Str("id", doc.ID).
				Int("expected", p.dimensions).
				Int("got", len(doc.Embedding)).
				Msg("Embedding dimension mismatch, document skipped")
			continue
		}
		_, err := p.db.ExecContext(ctx, query,
			doc.ID, doc.Title, doc.Description, doc.URL, string(doc.Kind), doc.SourceID,
			doc.PublishedDate, doc.CreatedAt, doc.UpdatedAt, formatVector(doc.Embedding),
		)
		if err != nil {
			if ctx.Err() != nil {
				return upserted, fmt.Errorf("vectorstore: upsert aborted: %w", ctx.Err())
			}
			log.Warn().Err(err).Str("id", doc.ID).Msg("Failed to upsert vector document")
			continue
		}
		upserted++
	}
	return upserted, nil
}

// Delete removes a document by ID. Deleting an absent ID is not an error.
func (p *PgVector) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM vector_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("vectorstore: delete %s: %w", id, err)
	}
	return nil
}

// Search runs one filtered cosine-similarity query. Results come back
// ordered by distance, so the highest-similarity documents are first.
func (p *PgVector) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if len(req.Vector) != p.dimensions {
		return nil, fmt.Errorf("vectorstore: query dimension mismatch: expected %d, got %d: %w",
			p.dimensions, len(req.Vector), core.ErrInvalidInput)
	}
	if req.K <= 0 {
		return nil, fmt.Errorf("vectorstore: non-positive k: %w", core.ErrInvalidInput)
	}

	conditions := []string{}
	args := []interface{}{formatVector(req.Vector)}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if req.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = %s", arg(string(req.Kind))))
	}
	if len(req.SourceIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("source_id = ANY(%s::uuid[])", arg(pq.Array(req.SourceIDs))))
	}
	if !req.PublishedAfter.IsZero() {
		conditions = append(conditions, fmt.Sprintf("published_date >= %s", arg(req.PublishedAfter)))
	}
	if !req.PublishedBefore.IsZero() {
		conditions = append(conditions, fmt.Sprintf("published_date <= %s", arg(req.PublishedBefore)))
	}
	if len(req.ExcludeIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id NOT IN (SELECT unnest(%s::uuid[]))", arg(pq.Array(req.ExcludeIDs))))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, "\n\t\t\t  AND ")
	}

	query := fmt.Sprintf(`
		SELECT
			id,
			1 - (embedding <=> $1::vector) AS similarity
		FROM vector_documents
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT %s
	`, where, arg(req.K))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var result SearchResult
		if err := rows.Scan(&result.ID, &result.Score); err != nil {
			return nil, fmt.Errorf("vectorstore: scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: row iteration: %w", err)
	}
	return results, nil
}

// Count returns the total document count.
func (p *PgVector) Count(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return count, nil
}

// formatVector renders a []float64 in pgvector text format: "[0.1,0.2,...]".
func formatVector(embedding []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, val := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%f", val)
	}
	b.WriteByte(']')
	return b.String()
}
