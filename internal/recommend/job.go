package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"curio/internal/core"
	"curio/internal/persistence"
)

// JobStats counts what one feed generation pass did.
type JobStats struct {
	Users           int `json:"users"`
	Feeds           int `json:"feeds"`
	Recommendations int `json:"recommendations"`
	SkippedExisting int `json:"skipped_existing"`
	Failures        int `json:"failures"`
}

// Counters flattens the stats for run-history persistence.
func (s JobStats) Counters() map[string]int {
	return map[string]int{
		"users":            s.Users,
		"feeds":            s.Feeds,
		"recommendations":  s.Recommendations,
		"skipped_existing": s.SkippedExisting,
		"failures":         s.Failures,
	}
}

// Job generates the daily feeds for every user. Each (user, feed type) pair
// is an isolated unit of work; one failure never stops the pass.
type Job struct {
	users     persistence.UserRepository
	generator *Generator
	perFeed   int
}

// NewJob creates a feed generation Job emitting up to perFeed items per feed.
func NewJob(users persistence.UserRepository, generator *Generator, perFeed int) *Job {
	if perFeed <= 0 {
		perFeed = 10
	}
	return &Job{users: users, generator: generator, perFeed: perFeed}
}

// Run generates feeds for all users for the given civil day. Only a failure
// to enumerate users is fatal.
func (j *Job) Run(ctx context.Context, date time.Time) (JobStats, error) {
	date = core.CivilDay(date)
	started := time.Now()

	users, err := j.users.GetAll(ctx)
	if err != nil {
		return JobStats{}, fmt.Errorf("feed job: list users: %w", err)
	}

	log.Info().
		Int("users", len(users)).
		Str("date", date.Format("2006-01-02")).
		Msg("Feed generation started")

	stats := JobStats{Users: len(users)}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("feed job: %w", err)
		}
		for _, feedType := range core.FeedKinds() {
			recs, created, err := j.generator.Generate(ctx, user.ID, feedType, date, j.perFeed)
			if err != nil {
				stats.Failures++
				log.Error().Err(err).
					Str("user_id", user.ID).
					Str("feed_type", string(feedType)).
					Msg("Feed generation failed")
				continue
			}
			if !created {
				if len(recs) > 0 {
					stats.SkippedExisting++
				}
				continue
			}
			stats.Feeds++
			stats.Recommendations += len(recs)
		}
	}

	log.Info().
		Int("users", stats.Users).
		Int("feeds", stats.Feeds).
		Int("recommendations", stats.Recommendations).
		Int("skipped_existing", stats.SkippedExisting).
		Int("failures", stats.Failures).
		Dur("elapsed", time.Since(started)).
		Msg("Feed generation finished")

	return stats, nil
}
