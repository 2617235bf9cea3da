package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"curio/internal/core"
	"curio/internal/vectorstore"
)

type fakeVoteRepo struct {
	votes map[string][]core.Vote
	err   error
}

func (f *fakeVoteRepo) GetByUser(_ context.Context, userID string) ([]core.Vote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.votes[userID], nil
}

type fakeRecommendationRepo struct {
	rows   []core.Recommendation
	addErr error
	added  int
}

func (f *fakeRecommendationRepo) GetByUserDateType(_ context.Context, userID string, date time.Time, feedType core.ResourceKind) ([]core.Recommendation, error) {
	var matched []core.Recommendation
	for _, row := range f.rows {
		if row.UserID == userID && row.Date.Equal(core.CivilDay(date)) && row.FeedType == feedType {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Position < matched[j].Position })
	return matched, nil
}

func (f *fakeRecommendationRepo) GetRecentByUser(_ context.Context, userID string, startDate, endDate time.Time) ([]core.Recommendation, error) {
	var matched []core.Recommendation
	for _, row := range f.rows {
		if row.UserID == userID && !row.Date.Before(startDate) && !row.Date.After(endDate) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (f *fakeRecommendationRepo) ExistsFor(ctx context.Context, userID string, date time.Time, feedType core.ResourceKind) (bool, error) {
	rows, err := f.GetByUserDateType(ctx, userID, date, feedType)
	return len(rows) > 0, err
}

func (f *fakeRecommendationRepo) Add(_ context.Context, rec *core.Recommendation) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.rows = append(f.rows, *rec)
	f.added++
	return nil
}

type fakeResourceRepo struct {
	resources []core.Resource
	err       error
}

func (f *fakeResourceRepo) GetByID(_ context.Context, id string) (*core.Resource, error) {
	for i := range f.resources {
		if f.resources[i].ID == id {
			return &f.resources[i], nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeResourceRepo) GetByIDs(_ context.Context, ids []string) ([]core.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var matched []core.Resource
	for _, r := range f.resources {
		if _, ok := wanted[r.ID]; ok {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func (f *fakeResourceRepo) GetAll(_ context.Context) ([]core.Resource, error) {
	return f.resources, f.err
}

func (f *fakeResourceRepo) GetByKind(_ context.Context, kind core.ResourceKind, createdAfter time.Time, limit int) ([]core.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	var matched []core.Resource
	for _, r := range f.resources {
		if r.Kind == kind && r.CreatedAt.After(createdAfter) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeResourceRepo) ExistsByURL(_ context.Context, url string) (bool, error) {
	for _, r := range f.resources {
		if r.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResourceRepo) Add(_ context.Context, resource *core.Resource) error {
	f.resources = append(f.resources, *resource)
	return nil
}

func (f *fakeResourceRepo) Update(_ context.Context, resource *core.Resource) error {
	for i := range f.resources {
		if f.resources[i].ID == resource.ID {
			f.resources[i] = *resource
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeResourceRepo) Delete(_ context.Context, id string) error {
	for i := range f.resources {
		if f.resources[i].ID == id {
			f.resources = append(f.resources[:i], f.resources[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

type fakeUserRepo struct {
	users []core.User
	err   error
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*core.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i], nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeUserRepo) GetAll(_ context.Context) ([]core.User, error) {
	return f.users, f.err
}

type fakeIndex struct {
	results []vectorstore.SearchResult
	err     error
	lastReq vectorstore.SearchRequest
}

func (f *fakeIndex) Initialize(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, docs []core.VectorDocument) (int, error) {
	return len(docs), nil
}

func (f *fakeIndex) Delete(context.Context, string) error { return nil }

func (f *fakeIndex) Search(_ context.Context, req vectorstore.SearchRequest) ([]vectorstore.SearchResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	excluded := make(map[string]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	var results []vectorstore.SearchResult
	for _, r := range f.results {
		if _, skip := excluded[r.ID]; skip {
			continue
		}
		results = append(results, r)
		if len(results) == req.K {
			break
		}
	}
	return results, nil
}

func (f *fakeIndex) Count(context.Context) (int64, error) {
	return int64(len(f.results)), nil
}

// fakeEmbedder returns a deterministic unit vector per text: the i-th input
// gets axis i mod dims.
type fakeEmbedder struct {
	dims  int
	err   error
	calls int
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, f.dims)
		v[i%f.dims] = 1
		vectors[i] = v
	}
	return vectors, nil
}

func testResource(id, sourceID string, kind core.ResourceKind, createdAt time.Time) core.Resource {
	return core.Resource{
		ID:        id,
		Kind:      kind,
		Title:     "Resource " + id,
		URL:       fmt.Sprintf("https://example.com/%s", id),
		SourceID:  sourceID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func upvoteOn(resource core.Resource, userID string) core.Vote {
	return core.Vote{
		ID:         "vote-" + resource.ID,
		UserID:     userID,
		ResourceID: resource.ID,
		Polarity:   core.Upvote,
		CreatedAt:  resource.CreatedAt,
		Resource:   &resource,
	}
}

func downvoteOn(resource core.Resource, userID string) core.Vote {
	vote := upvoteOn(resource, userID)
	vote.ID = "down" + vote.ID
	vote.Polarity = core.Downvote
	return vote
}
