package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"curio/internal/core"
	"curio/internal/persistence"
	"curio/internal/vectorstore"
)

// Heuristic component weights. The hybrid vector/heuristic blend is
// configurable; these inner weights are fixed.
const (
	weightSourcePref    = 0.5
	weightRecency       = 0.3
	weightVoteSentiment = 0.2

	// recencyHalfLifeDays is the decay constant for the recency score.
	recencyHalfLifeDays = 30.0
)

// diversityPenalties is subtracted from the 2nd, 3rd, ... admitted item of
// the same source. Recorded on the score for transparency; admitted items
// are not re-sorted by it.
var diversityPenalties = []float64{0.02, 0.04, 0.05}

// EngineOptions configures the hybrid engine.
type EngineOptions struct {
	// VectorWeight is the share of the hybrid score taken from vector
	// similarity; the heuristic gets the remainder.
	VectorWeight float64
	// RetrievalFactor scales the candidate pool: k = factor * N.
	RetrievalFactor int
	// RecencyWindowDays bounds candidate age.
	RecencyWindowDays int
	// MaxPerSource is the diversity cap.
	MaxPerSource int
	// FallbackToRecent retrieves recent resources from the store when the
	// vector search fails transiently, instead of returning an empty feed.
	FallbackToRecent bool
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.VectorWeight <= 0 || o.VectorWeight > 1 {
		o.VectorWeight = 0.7
	}
	if o.RetrievalFactor <= 0 {
		o.RetrievalFactor = 10
	}
	if o.RecencyWindowDays <= 0 {
		o.RecencyWindowDays = 90
	}
	if o.MaxPerSource <= 0 {
		o.MaxPerSource = 3
	}
	return o
}

// Request carries everything one recommendation pass needs.
type Request struct {
	UserID                 string
	FeedType               core.ResourceKind
	Date                   time.Time
	Count                  int
	Profile                *core.UserProfile
	Votes                  []core.Vote
	SeenIDs                []string
	RecentlyRecommendedIDs []string
}

// Scored is one ranked candidate with its component scores.
type Scored struct {
	Resource         core.Resource
	VectorSimilarity float64
	Heuristic        float64
	Score            float64
}

// Engine produces ranked top-N candidates per (user, feed type, day) by
// fusing vector similarity with source, recency, and sentiment heuristics.
type Engine struct {
	index     vectorstore.Index
	resources persistence.ResourceRepository
	opts      EngineOptions
}

// NewEngine creates an Engine.
func NewEngine(index vectorstore.Index, resources persistence.ResourceRepository, opts EngineOptions) *Engine {
	return &Engine{index: index, resources: resources, opts: opts.withDefaults()}
}

// Recommend runs the retrieval, scoring, diversity, and selection phases.
// An empty candidate pool yields an empty result, not an error.
func (e *Engine) Recommend(ctx context.Context, req Request) ([]Scored, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("recommend: non-positive count: %w", core.ErrInvalidInput)
	}

	candidates, err := e.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	upvotes, downvotes := voteCountsBySource(req.Votes)
	for i := range candidates {
		candidates[i].Heuristic = e.heuristic(req, candidates[i].Resource, upvotes, downvotes)
		candidates[i].Score = e.opts.VectorWeight*candidates[i].VectorSimilarity +
			(1-e.opts.VectorWeight)*candidates[i].Heuristic
	}

	// applyDiversity admits in score order; penalties are recorded on the
	// admitted scores but do not reorder them.
	candidates = e.applyDiversity(candidates)

	if len(candidates) > req.Count {
		candidates = candidates[:req.Count]
	}
	return candidates, nil
}

// retrieve gathers candidates: vector search when the user has an embedding,
// otherwise recent resources of the feed type with a uniform neutral
// similarity.
func (e *Engine) retrieve(ctx context.Context, req Request) ([]Scored, error) {
	windowStart := core.CivilDay(req.Date).AddDate(0, 0, -e.opts.RecencyWindowDays)

	if req.Profile == nil || req.Profile.UserEmbedding == nil {
		return e.retrieveRecent(ctx, req, windowStart)
	}

	exclude := append(append([]string{}, req.SeenIDs...), req.RecentlyRecommendedIDs...)
	results, err := e.index.Search(ctx, vectorstore.SearchRequest{
		Vector:         req.Profile.UserEmbedding,
		K:              e.opts.RetrievalFactor * req.Count,
		Kind:           req.FeedType,
		PublishedAfter: windowStart,
		ExcludeIDs:     exclude,
	})
	if err != nil {
		// A transient index failure yields an empty feed rather than a
		// lower-quality one, unless fallback is configured.
		log.Warn().Err(err).
			Str("user_id", req.UserID).
			Str("feed_type", string(req.FeedType)).
			Msg("Vector search failed")
		if e.opts.FallbackToRecent {
			return e.retrieveRecent(ctx, req, windowStart)
		}
		return nil, nil
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	resources, err := e.resources.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("recommend: load candidate resources: %w", err)
	}
	byID := make(map[string]core.Resource, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
	}

	candidates := make([]Scored, 0, len(results))
	for _, result := range results {
		resource, ok := byID[result.ID]
		if !ok {
			// The index can briefly reference rows deleted by an admin;
			// the next reindex heals it.
			log.Info().Str("id", result.ID).Msg("Indexed document has no resource row, skipped")
			continue
		}
		candidates = append(candidates, Scored{
			Resource:         resource,
			VectorSimilarity: result.Score,
		})
	}
	return candidates, nil
}

// retrieveRecent is the no-embedding path: recent resources of the feed
// type, all with neutral vector similarity.
func (e *Engine) retrieveRecent(ctx context.Context, req Request, windowStart time.Time) ([]Scored, error) {
	resources, err := e.resources.GetByKind(ctx, req.FeedType, windowStart, e.opts.RetrievalFactor*req.Count)
	if err != nil {
		return nil, fmt.Errorf("recommend: load recent %s resources: %w", req.FeedType, err)
	}

	excluded := make(map[string]struct{}, len(req.SeenIDs)+len(req.RecentlyRecommendedIDs))
	for _, id := range req.SeenIDs {
		excluded[id] = struct{}{}
	}
	for _, id := range req.RecentlyRecommendedIDs {
		excluded[id] = struct{}{}
	}

	candidates := make([]Scored, 0, len(resources))
	for _, resource := range resources {
		if _, skip := excluded[resource.ID]; skip {
			continue
		}
		candidates = append(candidates, Scored{
			Resource:         resource,
			VectorSimilarity: neutralScore,
		})
	}
	return candidates, nil
}

// heuristic blends source preference, recency decay, and per-source vote
// sentiment for one candidate.
func (e *Engine) heuristic(req Request, resource core.Resource, upvotes, downvotes map[string]int) float64 {
	recency := recencyScore(req.Date, resource.CreatedAt)

	sourcePref := neutralScore
	if resource.SourceID != "" && req.Profile != nil {
		if pref, ok := req.Profile.SourcePreference[resource.SourceID]; ok {
			sourcePref = pref
		}
	}

	sentiment := neutralScore
	if resource.SourceID != "" {
		up := upvotes[resource.SourceID]
		down := downvotes[resource.SourceID]
		if up+down > 0 {
			sentiment = float64(up) / float64(up+down)
		}
	}

	return weightSourcePref*sourcePref + weightRecency*recency + weightVoteSentiment*sentiment
}

// recencyScore is exp(-age_days / half_life) clamped to [0,1].
func recencyScore(date, createdAt time.Time) float64 {
	ageDays := date.Sub(createdAt).Hours() / 24
	score := math.Exp(-ageDays / recencyHalfLifeDays)
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// voteCountsBySource tallies the user's up and down votes per source.
func voteCountsBySource(votes []core.Vote) (upvotes, downvotes map[string]int) {
	upvotes = make(map[string]int)
	downvotes = make(map[string]int)
	for _, vote := range votes {
		if vote.Resource == nil || vote.Resource.SourceID == "" {
			continue
		}
		if vote.Polarity > 0 {
			upvotes[vote.Resource.SourceID]++
		} else {
			downvotes[vote.Resource.SourceID]++
		}
	}
	return upvotes, downvotes
}

// applyDiversity scans candidates in score order, admits at most
// MaxPerSource per source, and subtracts the escalating penalty from repeat
// admissions. Resources without a source are always admitted.
func (e *Engine) applyDiversity(candidates []Scored) []Scored {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	perSource := make(map[string]int)
	admitted := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		sourceID := candidate.Resource.SourceID
		if sourceID == "" {
			admitted = append(admitted, candidate)
			continue
		}
		seen := perSource[sourceID]
		if seen >= e.opts.MaxPerSource {
			continue
		}
		if seen > 0 {
			idx := seen - 1
			if idx >= len(diversityPenalties) {
				idx = len(diversityPenalties) - 1
			}
			candidate.Score -= diversityPenalties[idx]
		}
		perSource[sourceID] = seen + 1
		admitted = append(admitted, candidate)
	}
	return admitted
}
