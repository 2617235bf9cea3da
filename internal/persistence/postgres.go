package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"curio/internal/core"
)

// PostgresDB implements Database for PostgreSQL.
type PostgresDB struct {
	db              *sql.DB
	sources         SourceRepository
	users           UserRepository
	votes           VoteRepository
	resources       ResourceRepository
	recommendations RecommendationRepository
}

// Pool holds connection pool settings.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (p Pool) withDefaults() Pool {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 25
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 5
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 5 * time.Minute
	}
	return p
}

// NewPostgresDB opens a PostgreSQL connection and verifies it with a short
// ping. A failure here is a configuration error and fatal to the process.
func NewPostgresDB(connectionString string, pool Pool) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool = pool.withDefaults()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newPostgresDB(db), nil
}

// newPostgresDB wires the repositories over an existing connection. Split
// out so tests can hand in a mock *sql.DB.
func newPostgresDB(db *sql.DB) *PostgresDB {
	return &PostgresDB{
		db:              db,
		sources:         &postgresSourceRepo{db: db},
		users:           &postgresUserRepo{db: db},
		votes:           &postgresVoteRepo{db: db},
		resources:       &postgresResourceRepo{db: db},
		recommendations: &postgresRecommendationRepo{db: db},
	}
}

func (p *PostgresDB) Sources() SourceRepository                 { return p.sources }
func (p *PostgresDB) Users() UserRepository                     { return p.users }
func (p *PostgresDB) Votes() VoteRepository                     { return p.votes }
func (p *PostgresDB) Resources() ResourceRepository             { return p.resources }
func (p *PostgresDB) Recommendations() RecommendationRepository { return p.recommendations }

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// DB exposes the raw connection for collaborators that share it, such as
// the vector index.
func (p *PostgresDB) DB() *sql.DB {
	return p.db
}

// EnsureSchema creates the core tables and indexes if they do not exist.
// Versioned migration tooling lives with the API; the worker only needs the
// schema to be present.
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id UUID PRIMARY KEY,
			owner_user_id UUID NOT NULL REFERENCES users (id),
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			category TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			source_id UUID REFERENCES sources (id),
			published_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_kind_created ON resources (kind, created_at)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id),
			resource_id UUID NOT NULL REFERENCES resources (id) ON DELETE CASCADE,
			polarity SMALLINT NOT NULL CHECK (polarity IN (1, -1)),
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, resource_id)
		)`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id),
			resource_id UUID NOT NULL REFERENCES resources (id) ON DELETE RESTRICT,
			feed_type TEXT NOT NULL,
			date DATE NOT NULL,
			position INTEGER NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_user_date_type ON recommendations (user_id, date, feed_type)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_user_date ON recommendations (user_id, date)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime maps a nil *time.Time to SQL NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// scanResource reads one resource row in the canonical column order.
func scanResource(row interface{ Scan(...interface{}) error }) (*core.Resource, error) {
	var r core.Resource
	var kind string
	var sourceID sql.NullString
	var published sql.NullTime

	err := row.Scan(
		&r.ID, &kind, &r.Title, &r.Description, &r.URL,
		&sourceID, &published, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	r.Kind = core.ResourceKind(kind)
	if sourceID.Valid {
		r.SourceID = sourceID.String
	}
	if published.Valid {
		t := published.Time.UTC()
		r.PublishedDate = &t
	}
	return &r, nil
}
