package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"curio/internal/core"
	"curio/internal/persistence"
)

// DefaultExclusionDays is how far back previously emitted recommendations
// are excluded from new feeds.
const DefaultExclusionDays = 7

// Generator orchestrates idempotent per-(user, feed type, day) feed
// persistence. It is the single writer of recommendation rows; position
// integrity rests on that plus the single-replica worker.
type Generator struct {
	votes           persistence.VoteRepository
	recommendations persistence.RecommendationRepository
	profiles        *ProfileBuilder
	engine          *Engine
	exclusionDays   int
}

// NewGenerator creates a Generator.
func NewGenerator(
	votes persistence.VoteRepository,
	recommendations persistence.RecommendationRepository,
	profiles *ProfileBuilder,
	engine *Engine,
	exclusionDays int,
) *Generator {
	if exclusionDays <= 0 {
		exclusionDays = DefaultExclusionDays
	}
	return &Generator{
		votes:           votes,
		recommendations: recommendations,
		profiles:        profiles,
		engine:          engine,
		exclusionDays:   exclusionDays,
	}
}

// Generate produces and persists up to n recommendations for one
// (user, feed type, day). When the feed already exists it is returned as-is;
// the second return reports whether this call created it.
func (g *Generator) Generate(ctx context.Context, userID string, feedType core.ResourceKind, date time.Time, n int) ([]core.Recommendation, bool, error) {
	date = core.CivilDay(date)

	existing, err := g.recommendations.GetByUserDateType(ctx, userID, date, feedType)
	if err != nil {
		return nil, false, fmt.Errorf("generate feed %s/%s: %w", userID, feedType, err)
	}
	if len(existing) > 0 {
		return existing, false, nil
	}

	votes, err := g.votes.GetByUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("generate feed %s/%s: %w", userID, feedType, err)
	}

	profile, err := g.profiles.BuildFromVotes(ctx, votes)
	if err != nil {
		return nil, false, fmt.Errorf("generate feed %s/%s: %w", userID, feedType, err)
	}

	seenIDs := make([]string, 0, len(votes))
	for _, vote := range votes {
		seenIDs = append(seenIDs, vote.ResourceID)
	}

	recent, err := g.recommendations.GetRecentByUser(ctx, userID,
		date.AddDate(0, 0, -g.exclusionDays), date)
	if err != nil {
		return nil, false, fmt.Errorf("generate feed %s/%s: %w", userID, feedType, err)
	}
	recentIDs := make([]string, 0, len(recent))
	for _, rec := range recent {
		recentIDs = append(recentIDs, rec.ResourceID)
	}

	scored, err := g.engine.Recommend(ctx, Request{
		UserID:                 userID,
		FeedType:               feedType,
		Date:                   date,
		Count:                  n,
		Profile:                profile,
		Votes:                  votes,
		SeenIDs:                seenIDs,
		RecentlyRecommendedIDs: recentIDs,
	})
	if err != nil {
		return nil, false, fmt.Errorf("generate feed %s/%s: %w", userID, feedType, err)
	}
	if len(scored) == 0 {
		return nil, false, nil
	}

	now := time.Now().UTC()
	recs := make([]core.Recommendation, 0, len(scored))
	for i, candidate := range scored {
		rec := core.Recommendation{
			ID:          uuid.NewString(),
			UserID:      userID,
			ResourceID:  candidate.Resource.ID,
			FeedType:    feedType,
			Date:        date,
			Position:    i + 1,
			Score:       candidate.Score,
			GeneratedAt: now,
		}
		if err := g.recommendations.Add(ctx, &rec); err != nil {
			// Rows written so far form a contiguous prefix 1..i, so the
			// shape invariant holds even on a partial write.
			return recs, true, fmt.Errorf("persist recommendation %d for %s/%s: %w",
				rec.Position, userID, feedType, err)
		}
		recs = append(recs, rec)
	}
	return recs, true, nil
}

// GenerateAll runs Generate for every enumerated feed type and concatenates
// the results. A failure in one feed type is logged and the next proceeds.
func (g *Generator) GenerateAll(ctx context.Context, userID string, date time.Time, n int) []core.Recommendation {
	var all []core.Recommendation
	for _, feedType := range core.FeedKinds() {
		recs, _, err := g.Generate(ctx, userID, feedType, date, n)
		if err != nil {
			log.Error().Err(err).
				Str("user_id", userID).
				Str("feed_type", string(feedType)).
				Msg("Feed generation failed for feed type")
			continue
		}
		all = append(all, recs...)
	}
	return all
}
