package recommend

import (
	"context"
	"testing"
	"time"

	"curio/internal/core"
	"curio/internal/vectorstore"
)

func newTestGenerator(votes *fakeVoteRepo, recs *fakeRecommendationRepo, resources *fakeResourceRepo, index *fakeIndex) *Generator {
	profiles := NewProfileBuilder(votes, &fakeEmbedder{dims: 2})
	engine := NewEngine(index, resources, EngineOptions{})
	return NewGenerator(votes, recs, profiles, engine, 7)
}

func TestGenerate_ColdStartPersistsContiguousPositions(t *testing.T) {
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	resources := &fakeResourceRepo{resources: []core.Resource{
		testResource("r1", "src-a", core.KindPaper, date.AddDate(0, 0, -1)),
		testResource("r2", "src-b", core.KindPaper, date.AddDate(0, 0, -2)),
		testResource("r3", "src-c", core.KindPaper, date.AddDate(0, 0, -3)),
	}}
	recs := &fakeRecommendationRepo{}
	gen := newTestGenerator(&fakeVoteRepo{}, recs, resources, &fakeIndex{})

	rows, created, err := gen.Generate(context.Background(), "u1", core.KindPaper, date, 10)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !created {
		t.Error("Expected created=true for a fresh feed")
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 recommendations, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Position != i+1 {
			t.Errorf("Row %d: expected position %d, got %d", i, i+1, row.Position)
		}
		if row.UserID != "u1" || row.FeedType != core.KindPaper {
			t.Errorf("Row %d carries wrong feed identity: %+v", i, row)
		}
		if !row.Date.Equal(date) {
			t.Errorf("Row %d: expected civil day %v, got %v", i, date, row.Date)
		}
		if row.ID == "" {
			t.Errorf("Row %d: missing ID", i)
		}
	}
}

func TestGenerate_IdempotentForExistingFeed(t *testing.T) {
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	existing := core.Recommendation{
		ID: "rec-1", UserID: "u1", ResourceID: "r9",
		FeedType: core.KindPaper, Date: date, Position: 1, Score: 0.8,
	}
	recs := &fakeRecommendationRepo{rows: []core.Recommendation{existing}}
	gen := newTestGenerator(&fakeVoteRepo{}, recs, &fakeResourceRepo{}, &fakeIndex{})

	// A later call the same day, even with fresher votes, changes nothing.
	rows, created, err := gen.Generate(context.Background(), "u1", core.KindPaper, date.Add(14*time.Hour), 10)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if created {
		t.Error("Expected created=false for an existing feed")
	}
	if len(rows) != 1 || rows[0].ID != "rec-1" {
		t.Errorf("Expected the stored feed back, got %v", rows)
	}
	if recs.added != 0 {
		t.Errorf("Existing feed must not be rewritten, %d rows added", recs.added)
	}
}

func TestGenerate_ExcludesVotedAndRecentlyRecommended(t *testing.T) {
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	voted := testResource("voted", "src-a", core.KindPaper, date.AddDate(0, 0, -2))
	votes := &fakeVoteRepo{votes: map[string][]core.Vote{
		"u1": {upvoteOn(voted, "u1")},
	}}
	recs := &fakeRecommendationRepo{rows: []core.Recommendation{
		{ID: "prev", UserID: "u1", ResourceID: "recent", FeedType: core.KindPaper,
			Date: date.AddDate(0, 0, -3), Position: 1},
	}}
	index := &fakeIndex{results: []vectorstore.SearchResult{
		{ID: "voted", Score: 0.99},
		{ID: "recent", Score: 0.95},
		{ID: "novel", Score: 0.7},
	}}
	resources := &fakeResourceRepo{resources: []core.Resource{
		voted,
		testResource("recent", "src-a", core.KindPaper, date.AddDate(0, 0, -4)),
		testResource("novel", "src-b", core.KindPaper, date.AddDate(0, 0, -1)),
	}}
	gen := newTestGenerator(votes, recs, resources, index)

	rows, created, err := gen.Generate(context.Background(), "u1", core.KindPaper, date, 10)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !created {
		t.Error("Expected created=true")
	}
	if len(rows) != 1 || rows[0].ResourceID != "novel" {
		t.Errorf("Expected only the unseen resource, got %v", rows)
	}
}

func TestGenerate_EmptyPoolCreatesNothing(t *testing.T) {
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	recs := &fakeRecommendationRepo{}
	gen := newTestGenerator(&fakeVoteRepo{}, recs, &fakeResourceRepo{}, &fakeIndex{})

	rows, created, err := gen.Generate(context.Background(), "u1", core.KindSocialMediaPost, date, 10)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if created {
		t.Error("Expected created=false for an empty pool")
	}
	if len(rows) != 0 || recs.added != 0 {
		t.Errorf("Expected no rows, got %d returned, %d persisted", len(rows), recs.added)
	}
}

func TestGenerateAll_IsolatesFeedTypeFailures(t *testing.T) {
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	resources := &fakeResourceRepo{resources: []core.Resource{
		testResource("p1", "src-a", core.KindPaper, date.AddDate(0, 0, -1)),
		testResource("v1", "src-a", core.KindVideo, date.AddDate(0, 0, -1)),
	}}
	recs := &fakeRecommendationRepo{}
	gen := newTestGenerator(&fakeVoteRepo{}, recs, resources, &fakeIndex{})

	all := gen.GenerateAll(context.Background(), "u1", date, 10)
	if len(all) != 2 {
		t.Fatalf("Expected one recommendation per populated feed type, got %d", len(all))
	}
	kinds := map[core.ResourceKind]bool{}
	for _, rec := range all {
		kinds[rec.FeedType] = true
	}
	if !kinds[core.KindPaper] || !kinds[core.KindVideo] {
		t.Errorf("Expected paper and video feeds, got %v", kinds)
	}
}
