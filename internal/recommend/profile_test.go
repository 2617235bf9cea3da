package recommend

import (
	"context"
	"math"
	"testing"
	"time"

	"curio/internal/core"
)

func TestBuildFromVotes_NoVotes(t *testing.T) {
	builder := NewProfileBuilder(&fakeVoteRepo{}, &fakeEmbedder{dims: 4})

	profile, err := builder.BuildFromVotes(context.Background(), nil)
	if err != nil {
		t.Fatalf("BuildFromVotes failed: %v", err)
	}
	if profile.UserEmbedding != nil {
		t.Error("Expected nil embedding for a user with no votes")
	}
	if profile.TotalInteractions != 0 {
		t.Errorf("Expected 0 interactions, got %d", profile.TotalInteractions)
	}
}

func TestBuildFromVotes_OnlyDownvotes(t *testing.T) {
	now := time.Now().UTC()
	resource := testResource("r1", "src-a", core.KindPaper, now)
	embedder := &fakeEmbedder{dims: 4}
	builder := NewProfileBuilder(&fakeVoteRepo{}, embedder)

	profile, err := builder.BuildFromVotes(context.Background(), []core.Vote{downvoteOn(resource, "u1")})
	if err != nil {
		t.Fatalf("BuildFromVotes failed: %v", err)
	}
	if profile.UserEmbedding != nil {
		t.Error("Expected nil embedding when the user has no upvotes")
	}
	if embedder.calls != 0 {
		t.Errorf("Embedder should not be called, got %d calls", embedder.calls)
	}
	if profile.TotalInteractions != 1 {
		t.Errorf("Expected 1 interaction, got %d", profile.TotalInteractions)
	}
}

func TestBuildFromVotes_EmbeddingIsNormalizedMean(t *testing.T) {
	now := time.Now().UTC()
	embedder := &fakeEmbedder{dims: 2}
	builder := NewProfileBuilder(&fakeVoteRepo{}, embedder)

	votes := []core.Vote{
		upvoteOn(testResource("r1", "src-a", core.KindPaper, now), "u1"),
		upvoteOn(testResource("r2", "src-a", core.KindPaper, now), "u1"),
	}
	profile, err := builder.BuildFromVotes(context.Background(), votes)
	if err != nil {
		t.Fatalf("BuildFromVotes failed: %v", err)
	}
	if embedder.calls != 1 {
		t.Errorf("Expected 1 batched embed call, got %d", embedder.calls)
	}

	// Inputs are the unit axes, so the mean is (0.5, 0.5) and the normalized
	// profile vector is (1/sqrt2, 1/sqrt2).
	want := 1 / math.Sqrt2
	if len(profile.UserEmbedding) != 2 {
		t.Fatalf("Expected 2-dim embedding, got %d", len(profile.UserEmbedding))
	}
	for i, got := range profile.UserEmbedding {
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("Embedding[%d] = %f, want %f", i, got, want)
		}
	}
}

func TestSourcePreferences_MinMaxNormalized(t *testing.T) {
	now := time.Now().UTC()
	a := testResource("r1", "src-a", core.KindPaper, now)
	b := testResource("r2", "src-b", core.KindPaper, now)
	c := testResource("r3", "src-c", core.KindPaper, now)

	votes := []core.Vote{
		upvoteOn(a, "u1"),
		upvoteOn(testResource("r1b", "src-a", core.KindPaper, now), "u1"),
		downvoteOn(b, "u1"),
		upvoteOn(c, "u1"),
	}

	prefs := sourcePreferences(votes)
	if prefs["src-a"] != 1.0 {
		t.Errorf("Expected best source at 1.0, got %f", prefs["src-a"])
	}
	if prefs["src-b"] != 0.0 {
		t.Errorf("Expected worst source at 0.0, got %f", prefs["src-b"])
	}
	mid := prefs["src-c"]
	if mid <= 0 || mid >= 1 {
		t.Errorf("Expected middle source strictly between 0 and 1, got %f", mid)
	}
}

func TestSourcePreferences_SingleSourceIsNeutral(t *testing.T) {
	now := time.Now().UTC()
	votes := []core.Vote{upvoteOn(testResource("r1", "src-a", core.KindPaper, now), "u1")}

	prefs := sourcePreferences(votes)
	if prefs["src-a"] != neutralScore {
		t.Errorf("Single source should get neutral preference, got %f", prefs["src-a"])
	}
}

func TestSourcePreferences_SkipsSourcelessVotes(t *testing.T) {
	now := time.Now().UTC()
	votes := []core.Vote{
		upvoteOn(testResource("r1", "", core.KindPaper, now), "u1"),
		{ID: "v2", UserID: "u1", ResourceID: "r2", Polarity: core.Upvote},
	}

	prefs := sourcePreferences(votes)
	if len(prefs) != 0 {
		t.Errorf("Expected no preferences, got %v", prefs)
	}
}
