// Package ingest runs the source ingestion pipeline: fetch each active
// source, extract candidate resources, deduplicate by URL, persist, and
// mirror new resources into the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"curio/internal/core"
	"curio/internal/embedding"
	"curio/internal/extract"
	"curio/internal/fetch"
	"curio/internal/persistence"
	"curio/internal/vectorstore"
)

const (
	// DefaultBatchSize is how many sources are grouped per batch.
	DefaultBatchSize = 5
	// DefaultSourceTimeout bounds one source end to end, LLM call included.
	DefaultSourceTimeout = 120 * time.Second
	// DefaultPageTextLimit caps the extracted page text handed to the LLM.
	DefaultPageTextLimit = 50000
)

// Fetcher retrieves source URLs. Satisfied by *fetch.Fetcher.
type Fetcher interface {
	FetchConditional(ctx context.Context, url string, cond fetch.Conditional) (*fetch.Result, error)
}

// ValidatorStore caches HTTP validators between runs for conditional fetches.
// Satisfied by *state.Store.
type ValidatorStore interface {
	Validators(url string) (etag, lastModified string, err error)
	SetValidators(url, etag, lastModified string) error
}

// Stats counts what one ingestion pass did.
type Stats struct {
	Sources    int `json:"sources"`
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"` // 304 Not Modified
	Candidates int `json:"candidates"`
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Embedded   int `json:"embedded"`
	Indexed    int `json:"indexed"`
	Failures   int `json:"failures"`
}

// Counters flattens the stats for run-history persistence.
func (s Stats) Counters() map[string]int {
	return map[string]int{
		"sources":    s.Sources,
		"fetched":    s.Fetched,
		"skipped":    s.Skipped,
		"candidates": s.Candidates,
		"added":      s.Added,
		"duplicates": s.Duplicates,
		"embedded":   s.Embedded,
		"indexed":    s.Indexed,
		"failures":   s.Failures,
	}
}

func (s *Stats) merge(other Stats) {
	s.Fetched += other.Fetched
	s.Skipped += other.Skipped
	s.Candidates += other.Candidates
	s.Added += other.Added
	s.Duplicates += other.Duplicates
	s.Embedded += other.Embedded
	s.Indexed += other.Indexed
	s.Failures += other.Failures
}

// Options configures an ingestion Job.
type Options struct {
	BatchSize     int
	SourceTimeout time.Duration
	PageTextLimit int
	// MaxCandidatesPerSource caps candidates taken from one source per run.
	MaxCandidatesPerSource int
	// DisableFeedFastPath forces every source through LLM extraction, even
	// responses that parse as RSS/Atom.
	DisableFeedFastPath bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = DefaultSourceTimeout
	}
	if o.PageTextLimit <= 0 {
		o.PageTextLimit = DefaultPageTextLimit
	}
	if o.MaxCandidatesPerSource <= 0 {
		o.MaxCandidatesPerSource = extract.DefaultMaxCandidates
	}
	return o
}

// Job is the ingestion pipeline. Sources are independent units of work: one
// source failing, timing out, or producing garbage never affects the others.
// Only an authentication failure from the LLM aborts the whole pass.
type Job struct {
	sources    persistence.SourceRepository
	resources  persistence.ResourceRepository
	fetcher    Fetcher
	extractor  extract.Extractor
	embedder   embedding.Embedder
	index      vectorstore.Index
	validators ValidatorStore
	opts       Options
}

// NewJob creates an ingestion Job. validators may be nil; conditional fetches
// are then disabled and every source is fetched in full.
func NewJob(
	sources persistence.SourceRepository,
	resources persistence.ResourceRepository,
	fetcher Fetcher,
	extractor extract.Extractor,
	embedder embedding.Embedder,
	index vectorstore.Index,
	validators ValidatorStore,
	opts Options,
) *Job {
	return &Job{
		sources:    sources,
		resources:  resources,
		fetcher:    fetcher,
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
		validators: validators,
		opts:       opts.withDefaults(),
	}
}

// Run ingests all active sources, serially in batches, and aggregates the
// whole pass into one Stats.
func (j *Job) Run(ctx context.Context) (Stats, error) {
	started := time.Now()

	sources, err := j.sources.GetActive(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: list active sources: %w", err)
	}

	log.Info().Int("sources", len(sources)).Msg("Ingestion started")

	stats := Stats{Sources: len(sources)}

	for start := 0; start < len(sources); start += j.opts.BatchSize {
		end := start + j.opts.BatchSize
		if end > len(sources) {
			end = len(sources)
		}
		log.Debug().Int("from", start).Int("to", end).Msg("Ingesting source batch")

		for _, source := range sources[start:end] {
			if err := ctx.Err(); err != nil {
				return stats, fmt.Errorf("ingest: %w", err)
			}
			result, err := j.processSource(ctx, source)
			stats.merge(result)
			if err != nil {
				// A bad credential fails every remaining source the same
				// way; stop instead of burning through the list.
				if errors.Is(err, core.ErrAuth) {
					return stats, fmt.Errorf("ingest: %w", err)
				}
				stats.Failures++
				log.Error().Err(err).
					Str("source_id", source.ID).
					Str("url", source.URL).
					Msg("Source ingestion failed")
			}
		}
	}

	log.Info().
		Int("sources", stats.Sources).
		Int("fetched", stats.Fetched).
		Int("skipped", stats.Skipped).
		Int("candidates", stats.Candidates).
		Int("added", stats.Added).
		Int("duplicates", stats.Duplicates).
		Int("indexed", stats.Indexed).
		Int("failures", stats.Failures).
		Dur("elapsed", time.Since(started)).
		Msg("Ingestion finished")

	return stats, nil
}

// RunSource ingests a single source by ID regardless of batching. Used by the
// ingestion command's --source flag.
func (j *Job) RunSource(ctx context.Context, sourceID string) (Stats, error) {
	source, err := j.sources.GetByID(ctx, sourceID)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: source %s: %w", sourceID, err)
	}

	stats := Stats{Sources: 1}
	result, err := j.processSource(ctx, *source)
	stats.merge(result)
	if err != nil {
		stats.Failures++
		return stats, fmt.Errorf("ingest: source %s: %w", sourceID, err)
	}
	return stats, nil
}

// processSource runs the pipeline for one source under its own deadline.
func (j *Job) processSource(ctx context.Context, source core.Source) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, j.opts.SourceTimeout)
	defer cancel()

	var stats Stats

	var cond fetch.Conditional
	if j.validators != nil {
		etag, lastModified, err := j.validators.Validators(source.URL)
		if err != nil {
			log.Warn().Err(err).Str("url", source.URL).Msg("Validator lookup failed, fetching unconditionally")
		} else {
			cond = fetch.Conditional{ETag: etag, LastModified: lastModified}
		}
	}

	result, err := j.fetcher.FetchConditional(ctx, source.URL, cond)
	if err != nil {
		return stats, fmt.Errorf("fetch: %w", err)
	}
	if result.NotModified {
		stats.Skipped++
		log.Debug().Str("url", source.URL).Msg("Source not modified, skipped")
		return stats, nil
	}
	stats.Fetched++

	if j.validators != nil && (result.ETag != "" || result.LastModified != "") {
		if err := j.validators.SetValidators(source.URL, result.ETag, result.LastModified); err != nil {
			log.Warn().Err(err).Str("url", source.URL).Msg("Failed to cache validators")
		}
	}

	candidates, err := j.extractCandidates(ctx, source, result)
	if err != nil {
		return stats, err
	}
	stats.Candidates += len(candidates)

	added := j.persistCandidates(ctx, source, candidates, &stats)
	if len(added) == 0 {
		return stats, nil
	}

	embedded, indexed, err := j.indexResources(ctx, added)
	stats.Embedded += embedded
	stats.Indexed += indexed
	if err != nil {
		return stats, err
	}

	log.Info().
		Str("source_id", source.ID).
		Str("url", source.URL).
		Int("candidates", len(candidates)).
		Int("added", len(added)).
		Msg("Source ingested")

	return stats, nil
}

// extractCandidates chooses the parsing strategy: structured feeds are parsed
// directly, everything else goes through text extraction and the LLM. A parse
// failure from the LLM means the source produced nothing this run.
func (j *Job) extractCandidates(ctx context.Context, source core.Source, result *fetch.Result) ([]core.Candidate, error) {
	if !j.opts.DisableFeedFastPath && fetch.LooksLikeFeed(result.ContentType, result.Body) {
		candidates, err := fetch.ParseFeedCandidates(result.Body, source.URL, j.opts.MaxCandidatesPerSource)
		if err != nil {
			return nil, fmt.Errorf("parse feed: %w", err)
		}
		return candidates, nil
	}

	text, err := fetch.ExtractText(result.Body, source.URL, j.opts.PageTextLimit)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	candidates, err := j.extractor.Extract(ctx, source.URL, text, source.Category)
	if err != nil {
		if errors.Is(err, core.ErrParse) {
			log.Warn().Err(err).Str("url", source.URL).Msg("Unparseable extraction output, source yields nothing this run")
			return nil, nil
		}
		return nil, err
	}
	return candidates, nil
}

// persistCandidates validates and stores candidates, returning the resources
// actually added. Duplicate URLs are expected steady-state noise, counted but
// never treated as failures.
func (j *Job) persistCandidates(ctx context.Context, source core.Source, candidates []core.Candidate, stats *Stats) []core.Resource {
	var added []core.Resource
	for _, cand := range candidates {
		if cand.URL == "" || cand.Title == "" {
			continue
		}

		exists, err := j.resources.ExistsByURL(ctx, cand.URL)
		if err != nil {
			log.Warn().Err(err).Str("url", cand.URL).Msg("Duplicate check failed, skipping candidate")
			continue
		}
		if exists {
			stats.Duplicates++
			continue
		}

		kind := cand.Kind
		if kind == "" {
			kind = source.Category
		}

		now := time.Now().UTC()
		resource := core.Resource{
			ID:            uuid.NewString(),
			Kind:          kind,
			Title:         cand.Title,
			Description:   cand.Description,
			URL:           cand.URL,
			SourceID:      source.ID,
			PublishedDate: cand.PublishedDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := j.resources.Add(ctx, &resource); err != nil {
			// Lost the race with a concurrent insert of the same URL.
			if errors.Is(err, core.ErrDuplicateURL) {
				stats.Duplicates++
				continue
			}
			log.Warn().Err(err).Str("url", cand.URL).Msg("Failed to persist candidate")
			continue
		}
		stats.Added++
		added = append(added, resource)
	}
	return added
}

// indexResources embeds the new resources in one batch and mirrors them into
// the vector index. An embedding or index failure leaves the rows persisted;
// a later reindex pass picks them up.
func (j *Job) indexResources(ctx context.Context, resources []core.Resource) (embedded, indexed int, err error) {
	texts := make([]string, len(resources))
	for i, r := range resources {
		texts[i] = core.EmbeddingText(r.Title, r.Description)
	}

	vectors, err := j.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("embed %d resources: %w", len(resources), err)
	}

	docs := make([]core.VectorDocument, len(resources))
	for i, r := range resources {
		docs[i] = vectorDocument(r, vectors[i])
	}

	indexed, err = j.index.Upsert(ctx, docs)
	if err != nil {
		return len(vectors), indexed, fmt.Errorf("index %d resources: %w", len(docs), err)
	}
	return len(vectors), indexed, nil
}

// vectorDocument mirrors a resource into its index representation. A missing
// publication date falls back to the first-seen timestamp so the recency
// filter always has a value to compare.
func vectorDocument(r core.Resource, vector []float64) core.VectorDocument {
	published := r.CreatedAt
	if r.PublishedDate != nil {
		published = *r.PublishedDate
	}
	return core.VectorDocument{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		URL:           r.URL,
		Kind:          r.Kind,
		SourceID:      r.SourceID,
		PublishedDate: published,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Embedding:     vector,
	}
}
