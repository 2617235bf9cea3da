// Package recommend builds user preference profiles and turns them into
// ranked daily feeds through hybrid vector and heuristic retrieval.
package recommend

import (
	"context"
	"fmt"

	"curio/internal/core"
	"curio/internal/embedding"
	"curio/internal/persistence"
)

// upvoteWeight and downvoteWeight drive the per-source preference sums.
// A downvote costs half an upvote so one bad item does not bury a source.
const (
	upvoteWeight   = 1.0
	downvoteWeight = -0.5
)

// neutralScore is the value assigned when a signal carries no information.
const neutralScore = 0.5

// ProfileBuilder recomputes the transient user preference snapshot from vote
// history on every feed run.
type ProfileBuilder struct {
	votes    persistence.VoteRepository
	embedder embedding.Embedder
}

// NewProfileBuilder creates a ProfileBuilder.
func NewProfileBuilder(votes persistence.VoteRepository, embedder embedding.Embedder) *ProfileBuilder {
	return &ProfileBuilder{votes: votes, embedder: embedder}
}

// Build fetches the user's votes and derives their profile.
func (b *ProfileBuilder) Build(ctx context.Context, userID string) (*core.UserProfile, error) {
	votes, err := b.votes.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("build profile for user %s: %w", userID, err)
	}
	return b.BuildFromVotes(ctx, votes)
}

// BuildFromVotes derives a profile from already-fetched votes. The user
// embedding is the L2-normalized mean of the upvoted resources' embeddings,
// produced in one batched call; it stays nil when the user has no upvotes.
func (b *ProfileBuilder) BuildFromVotes(ctx context.Context, votes []core.Vote) (*core.UserProfile, error) {
	profile := &core.UserProfile{
		SourcePreference:  sourcePreferences(votes),
		TotalInteractions: len(votes),
	}

	var texts []string
	for _, vote := range votes {
		if vote.Polarity > 0 && vote.Resource != nil {
			texts = append(texts, core.EmbeddingText(vote.Resource.Title, vote.Resource.Description))
		}
	}
	if len(texts) == 0 {
		return profile, nil
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d upvoted resources: %w", len(texts), err)
	}
	profile.UserEmbedding = embedding.Normalize(embedding.Mean(vectors))

	return profile, nil
}

// sourcePreferences accumulates per-source vote sums and min-max normalizes
// them into [0,1]. A single source, or sums that are all equal, yield a
// uniform neutral preference.
func sourcePreferences(votes []core.Vote) map[string]float64 {
	sums := make(map[string]float64)
	for _, vote := range votes {
		if vote.Resource == nil || vote.Resource.SourceID == "" {
			continue
		}
		if vote.Polarity > 0 {
			sums[vote.Resource.SourceID] += upvoteWeight
		} else {
			sums[vote.Resource.SourceID] += downvoteWeight
		}
	}

	prefs := make(map[string]float64, len(sums))
	if len(sums) == 0 {
		return prefs
	}

	first := true
	var minSum, maxSum float64
	for _, sum := range sums {
		if first {
			minSum, maxSum = sum, sum
			first = false
			continue
		}
		if sum < minSum {
			minSum = sum
		}
		if sum > maxSum {
			maxSum = sum
		}
	}

	if maxSum == minSum {
		for id := range sums {
			prefs[id] = neutralScore
		}
		return prefs
	}

	for id, sum := range sums {
		prefs[id] = (sum - minSum) / (maxSum - minSum)
	}
	return prefs
}
