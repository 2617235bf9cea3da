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

const resourceColumns = `id, kind, title, description, url, source_id, published_date, created_at, updated_at`

// postgresSourceRepo implements SourceRepository.
type postgresSourceRepo struct {
	db *sql.DB
}

func (r *postgresSourceRepo) GetByID(ctx context.Context, id string) (*core.Source, error) {
	query := `
		SELECT id, owner_user_id, name, url, category, is_active
		FROM sources WHERE id = $1
	`
	var s core.Source
	var category string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.OwnerUserID, &s.Name, &s.URL, &category, &s.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}
	s.Category = core.ResourceKind(category)
	return &s, nil
}

func (r *postgresSourceRepo) GetActive(ctx context.Context) ([]core.Source, error) {
	query := `
		SELECT id, owner_user_id, name, url, category, is_active
		FROM sources
		WHERE is_active
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active sources: %w", err)
	}
	defer rows.Close()

	var sources []core.Source
	for rows.Next() {
		var s core.Source
		var category string
		if err := rows.Scan(&s.ID, &s.OwnerUserID, &s.Name, &s.URL, &category, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		s.Category = core.ResourceKind(category)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// postgresUserRepo implements UserRepository.
type postgresUserRepo struct {
	db *sql.DB
}

func (r *postgresUserRepo) GetByID(ctx context.Context, id string) (*core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, `SELECT id, email FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (r *postgresUserRepo) GetAll(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("get all users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// postgresVoteRepo implements VoteRepository.
type postgresVoteRepo struct {
	db *sql.DB
}

// GetByUser returns the user's votes with the referenced resource joined in.
func (r *postgresVoteRepo) GetByUser(ctx context.Context, userID string) ([]core.Vote, error) {
	query := `
		SELECT
			v.id, v.user_id, v.resource_id, v.polarity, v.created_at,
			r.id, r.kind, r.title, r.description, r.url,
			r.source_id, r.published_date, r.created_at, r.updated_at
		FROM votes v
		JOIN resources r ON r.id = v.resource_id
		WHERE v.user_id = $1
		ORDER BY v.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get votes for user %s: %w", userID, err)
	}
	defer rows.Close()

	var votes []core.Vote
	for rows.Next() {
		var v core.Vote
		var res core.Resource
		var kind string
		var sourceID sql.NullString
		var published sql.NullTime
		err := rows.Scan(
			&v.ID, &v.UserID, &v.ResourceID, &v.Polarity, &v.CreatedAt,
			&res.ID, &kind, &res.Title, &res.Description, &res.URL,
			&sourceID, &published, &res.CreatedAt, &res.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		res.Kind = core.ResourceKind(kind)
		if sourceID.Valid {
			res.SourceID = sourceID.String
		}
		if published.Valid {
			t := published.Time.UTC()
			res.PublishedDate = &t
		}
		v.Resource = &res
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// postgresResourceRepo implements ResourceRepository.
type postgresResourceRepo struct {
	db *sql.DB
}

func (r *postgresResourceRepo) GetByID(ctx context.Context, id string) (*core.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE id = $1`, resourceColumns)
	resource, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get resource %s: %w", id, err)
	}
	return resource, nil
}

func (r *postgresResourceRepo) GetByIDs(ctx context.Context, ids []string) ([]core.Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE id = ANY($1::uuid[])`, resourceColumns)
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get resources by ids: %w", err)
	}
	defer rows.Close()
	return collectResources(rows)
}

func (r *postgresResourceRepo) GetAll(ctx context.Context) ([]core.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources ORDER BY created_at`, resourceColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all resources: %w", err)
	}
	defer rows.Close()
	return collectResources(rows)
}

func (r *postgresResourceRepo) GetByKind(ctx context.Context, kind core.ResourceKind, createdAfter time.Time, limit int) ([]core.Resource, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM resources
		WHERE kind = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, resourceColumns)
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, query, string(kind), createdAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("get resources by kind %s: %w", kind, err)
	}
	defer rows.Close()
	return collectResources(rows)
}

func (r *postgresResourceRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM resources WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check resource url: %w", err)
	}
	return exists, nil
}

func (r *postgresResourceRepo) Add(ctx context.Context, resource *core.Resource) error {
	if resource.Title == "" || resource.URL == "" {
		return fmt.Errorf("resource requires title and url: %w", core.ErrInvalidInput)
	}
	query := `
		INSERT INTO resources (
			id, kind, title, description, url, source_id,
			published_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		resource.ID, string(resource.Kind), resource.Title, resource.Description,
		resource.URL, nullString(resource.SourceID), nullTime(resource.PublishedDate),
		resource.CreatedAt, resource.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("resource %s: %w", resource.URL, core.ErrDuplicateURL)
		}
		return fmt.Errorf("add resource: %w", err)
	}
	return nil
}

func (r *postgresResourceRepo) Update(ctx context.Context, resource *core.Resource) error {
	query := `
		UPDATE resources SET
			kind = $2, title = $3, description = $4, url = $5,
			source_id = $6, published_date = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		resource.ID, string(resource.Kind), resource.Title, resource.Description,
		resource.URL, nullString(resource.SourceID), nullTime(resource.PublishedDate),
		time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("resource %s: %w", resource.URL, core.ErrDuplicateURL)
		}
		return fmt.Errorf("update resource %s: %w", resource.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update resource %s: %w", resource.ID, err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *postgresResourceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	return nil
}

func collectResources(rows *sql.Rows) ([]core.Resource, error) {
	var resources []core.Resource
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, *resource)
	}
	return resources, rows.Err()
}

// postgresRecommendationRepo implements RecommendationRepository.
type postgresRecommendationRepo struct {
	db *sql.DB
}

const recommendationColumns = `id, user_id, resource_id, feed_type, date, position, score, generated_at`

func (r *postgresRecommendationRepo) GetByUserDateType(ctx context.Context, userID string, date time.Time, feedType core.ResourceKind) ([]core.Recommendation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM recommendations
		WHERE user_id = $1 AND date = $2 AND feed_type = $3
		ORDER BY position
	`, recommendationColumns)
	rows, err := r.db.QueryContext(ctx, query, userID, core.CivilDay(date), string(feedType))
	if err != nil {
		return nil, fmt.Errorf("get recommendations for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectRecommendations(rows)
}

func (r *postgresRecommendationRepo) GetRecentByUser(ctx context.Context, userID string, startDate, endDate time.Time) ([]core.Recommendation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM recommendations
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC, feed_type, position
	`, recommendationColumns)
	rows, err := r.db.QueryContext(ctx, query, userID, core.CivilDay(startDate), core.CivilDay(endDate))
	if err != nil {
		return nil, fmt.Errorf("get recent recommendations for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectRecommendations(rows)
}

func (r *postgresRecommendationRepo) ExistsFor(ctx context.Context, userID string, date time.Time, feedType core.ResourceKind) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recommendations
			WHERE user_id = $1 AND date = $2 AND feed_type = $3
		)
	`, userID, core.CivilDay(date), string(feedType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recommendations for user %s: %w", userID, err)
	}
	return exists, nil
}

func (r *postgresRecommendationRepo) Add(ctx context.Context, rec *core.Recommendation) error {
	query := `
		INSERT INTO recommendations (
			id, user_id, resource_id, feed_type, date, position, score, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.ResourceID, string(rec.FeedType),
		core.CivilDay(rec.Date), rec.Position, rec.Score, rec.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("add recommendation: %w", err)
	}
	return nil
}

func collectRecommendations(rows *sql.Rows) ([]core.Recommendation, error) {
	var recs []core.Recommendation
	for rows.Next() {
		var rec core.Recommendation
		var feedType string
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.ResourceID, &feedType,
			&rec.Date, &rec.Position, &rec.Score, &rec.GeneratedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		rec.FeedType = core.ResourceKind(feedType)
		rec.Date = core.CivilDay(rec.Date)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
