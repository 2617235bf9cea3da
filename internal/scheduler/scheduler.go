// Package scheduler drives the worker loop: periodic ingestion and
// once-per-day feed generation, both anchored on persisted run history so
// restarts never double-run a job.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTickInterval is how often due jobs are checked.
	DefaultTickInterval = time.Minute
	// DefaultIngestionInterval is the pause between ingestion passes.
	DefaultIngestionInterval = 24 * time.Hour
	// DefaultFeedHourUTC is the earliest UTC hour feeds run for a civil day.
	DefaultFeedHourUTC = 2
	// DefaultStartupDelay separates the startup ingestion from the startup
	// feed run so freshly indexed vectors are visible to retrieval.
	DefaultStartupDelay = 10 * time.Second
)

// JobFunc runs one pass of a job for the moment now.
type JobFunc func(ctx context.Context, now time.Time) error

// RunHistory answers when a job last finished successfully. Satisfied by
// *state.Store.
type RunHistory interface {
	LastSuccessfulRun(job string) (time.Time, bool, error)
}

// Options configures a Scheduler.
type Options struct {
	TickInterval      time.Duration
	IngestionInterval time.Duration
	FeedHourUTC       int
	RunOnStartup      bool
	StartupDelay      time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.IngestionInterval <= 0 {
		o.IngestionInterval = DefaultIngestionInterval
	}
	if o.FeedHourUTC < 0 || o.FeedHourUTC > 23 {
		o.FeedHourUTC = DefaultFeedHourUTC
	}
	if o.StartupDelay < 0 {
		o.StartupDelay = DefaultStartupDelay
	}
	return o
}

// Scheduler ticks and dispatches due jobs. Job functions record their own
// runs; the scheduler only reads the history to decide what is due.
type Scheduler struct {
	history   RunHistory
	ingestion JobFunc
	feeds     JobFunc
	opts      Options
}

// New creates a Scheduler over the two worker jobs.
func New(history RunHistory, ingestion, feeds JobFunc, opts Options) *Scheduler {
	return &Scheduler{
		history:   history,
		ingestion: ingestion,
		feeds:     feeds,
		opts:      opts.withDefaults(),
	}
}

// Run blocks until ctx is cancelled, dispatching due jobs on every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Dur("tick_interval", s.opts.TickInterval).
		Dur("ingestion_interval", s.opts.IngestionInterval).
		Int("feed_hour_utc", s.opts.FeedHourUTC).
		Bool("run_on_startup", s.opts.RunOnStartup).
		Msg("Scheduler started")

	if s.opts.RunOnStartup {
		s.runStartup(ctx)
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(ctx, now.UTC())
		}
	}
}

// runStartup forces both jobs once, ingestion first, with a pause between
// them so new index entries are queryable before feeds are generated.
func (s *Scheduler) runStartup(ctx context.Context) {
	now := time.Now().UTC()
	if err := s.ingestion(ctx, now); err != nil {
		log.Error().Err(err).Msg("Startup ingestion failed")
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.opts.StartupDelay):
	}

	if err := s.feeds(ctx, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("Startup feed generation failed")
	}
}

// Tick runs whichever jobs are due at now. Exported so a single tick can be
// exercised directly.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due, err := s.ingestionDue(now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check ingestion schedule")
	} else if due {
		if err := s.ingestion(ctx, now); err != nil {
			log.Error().Err(err).Msg("Scheduled ingestion failed")
		}
	}

	due, err = s.feedsDue(now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check feed schedule")
	} else if due {
		if err := s.feeds(ctx, now); err != nil {
			log.Error().Err(err).Msg("Scheduled feed generation failed")
		}
	}
}

// ingestionDue reports whether the ingestion interval has elapsed since the
// last successful pass. A worker that never ran ingests immediately.
func (s *Scheduler) ingestionDue(now time.Time) (bool, error) {
	last, ok, err := s.history.LastSuccessfulRun("ingestion")
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= s.opts.IngestionInterval, nil
}

// feedsDue reports whether feeds should run: at most once per civil UTC day,
// at or after the configured hour. A worker down past the hour catches up on
// its next tick rather than skipping the day.
func (s *Scheduler) feedsDue(now time.Time) (bool, error) {
	if now.Hour() < s.opts.FeedHourUTC {
		return false, nil
	}
	last, ok, err := s.history.LastSuccessfulRun("feed")
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	sameDay := last.UTC().Year() == now.Year() && last.UTC().YearDay() == now.YearDay()
	return !sameDay, nil
}
