// Package persistence provides the PostgreSQL-backed stores for sources,
// users, votes, resources, and recommendations.
package persistence

import (
	"context"
	"time"

	"curio/internal/core"
)

// Database aggregates the per-entity repositories behind one connection.
type Database interface {
	Sources() SourceRepository
	Users() UserRepository
	Votes() VoteRepository
	Resources() ResourceRepository
	Recommendations() RecommendationRepository

	Ping(ctx context.Context) error
	Close() error
}

// SourceRepository reads user-configured ingestion endpoints. The core never
// writes sources; those rows belong to the API.
type SourceRepository interface {
	GetByID(ctx context.Context, id string) (*core.Source, error)
	GetActive(ctx context.Context) ([]core.Source, error)
}

// UserRepository reads user identities. The core never writes users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*core.User, error)
	GetAll(ctx context.Context) ([]core.User, error)
}

// VoteRepository reads vote history. GetByUser eager-loads the referenced
// resource; the engine needs its source linkage and metadata.
type VoteRepository interface {
	GetByUser(ctx context.Context, userID string) ([]core.Vote, error)
}

// ResourceRepository owns resource rows. The URL is the business key: Add
// fails with core.ErrDuplicateURL when another resource already carries the
// same URL.
type ResourceRepository interface {
	GetByID(ctx context.Context, id string) (*core.Resource, error)
	GetByIDs(ctx context.Context, ids []string) ([]core.Resource, error)
	GetAll(ctx context.Context) ([]core.Resource, error)
	GetByKind(ctx context.Context, kind core.ResourceKind, createdAfter time.Time, limit int) ([]core.Resource, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
	Add(ctx context.Context, resource *core.Resource) error
	Update(ctx context.Context, resource *core.Resource) error
	Delete(ctx context.Context, id string) error
}

// RecommendationRepository owns recommendation rows. Rows are historical;
// the store exposes no update or delete. Position uniqueness within
// (user, date, feed_type) is the feed generator's responsibility.
type RecommendationRepository interface {
	GetByUserDateType(ctx context.Context, userID string, date time.Time, feedType core.ResourceKind) ([]core.Recommendation, error)
	GetRecentByUser(ctx context.Context, userID string, startDate, endDate time.Time) ([]core.Recommendation, error)
	ExistsFor(ctx context.Context, userID string, date time.Time, feedType core.ResourceKind) (bool, error)
	Add(ctx context.Context, rec *core.Recommendation) error
}
