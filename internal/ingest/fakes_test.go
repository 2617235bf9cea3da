package ingest

import (
	"context"
	"sync"
	"time"

	"curio/internal/core"
	"curio/internal/vectorstore"
)

type fakeSourceRepo struct {
	sources []core.Source
}

func (f *fakeSourceRepo) GetByID(_ context.Context, id string) (*core.Source, error) {
	for i := range f.sources {
		if f.sources[i].ID == id {
			return &f.sources[i], nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeSourceRepo) GetActive(_ context.Context) ([]core.Source, error) {
	var active []core.Source
	for _, s := range f.sources {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active, nil
}

type fakeResourceRepo struct {
	mu        sync.Mutex
	resources []core.Resource
	addErr    error
}

func (f *fakeResourceRepo) GetByID(_ context.Context, id string) (*core.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.resources {
		if f.resources[i].ID == id {
			r := f.resources[i]
			return &r, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeResourceRepo) GetByIDs(_ context.Context, ids []string) ([]core.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Resource{}, f.resources...), nil
}

func (f *fakeResourceRepo) GetByKind(_ context.Context, kind core.ResourceKind, createdAfter time.Time, limit int) ([]core.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []core.Resource
	for _, r := range f.resources {
		if r.Kind == kind && r.CreatedAt.After(createdAfter) {
			matched = append(matched, r)
		}
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (f *fakeResourceRepo) ExistsByURL(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.resources {
		if r.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResourceRepo) Add(_ context.Context, resource *core.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	for _, r := range f.resources {
		if r.URL == resource.URL {
			return core.ErrDuplicateURL
		}
	}
	f.resources = append(f.resources, *resource)
	return nil
}

func (f *fakeResourceRepo) Update(_ context.Context, resource *core.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.resources {
		if f.resources[i].ID == resource.ID {
			f.resources[i] = *resource
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeResourceRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.resources {
		if f.resources[i].ID == id {
			f.resources = append(f.resources[:i], f.resources[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

type fakeExtractor struct {
	mu         sync.Mutex
	candidates []core.Candidate
	err        error
	calls      int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ string, _ core.ResourceKind) ([]core.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	dims  int
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, f.dims)
		v[0] = 1
		vectors[i] = v
	}
	return vectors, nil
}

type fakeIndex struct {
	mu        sync.Mutex
	docs      map[string]core.VectorDocument
	upsertErr error
}

func (f *fakeIndex) Initialize(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, docs []core.VectorDocument) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	if f.docs == nil {
		f.docs = make(map[string]core.VectorDocument)
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return len(docs), nil
}

func (f *fakeIndex) Delete(context.Context, string) error { return nil }

func (f *fakeIndex) Search(context.Context, vectorstore.SearchRequest) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeIndex) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs)), nil
}

type fakeValidatorStore struct {
	mu         sync.Mutex
	etags      map[string]string
	lastMods   map[string]string
	setCalls   int
	lookupErrs error
}

func newFakeValidatorStore() *fakeValidatorStore {
	return &fakeValidatorStore{
		etags:    make(map[string]string),
		lastMods: make(map[string]string),
	}
}

func (f *fakeValidatorStore) Validators(url string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErrs != nil {
		return "", "", f.lookupErrs
	}
	return f.etags[url], f.lastMods[url], nil
}

func (f *fakeValidatorStore) SetValidators(url, etag, lastModified string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.etags[url] = etag
	f.lastMods[url] = lastModified
	return nil
}
