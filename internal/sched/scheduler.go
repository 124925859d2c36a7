package sched

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/ingest"
	"github.com/wikihist/wikihist/internal/storage"
)

// Scheduler periodically repopulates due scheduled articles and then
// refreshes stale user classifications.
type Scheduler struct {
	db        *storage.DB
	populator *ingest.Populator
	merger    *ingest.Merger
	interval  time.Duration
	log       *logrus.Logger
}

// New creates a scheduler ticking at the given interval.
func New(db *storage.DB, populator *ingest.Populator, merger *ingest.Merger, interval time.Duration, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		db:        db,
		populator: populator,
		merger:    merger,
		interval:  interval,
		log:       log,
	}
}

// Run blocks, executing a sweep once per interval until the context is
// canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infof("scheduler running every %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.WithError(err).Error("scheduled sweep failed")
			}
		}
	}
}

// RunOnce populates every due scheduled article, marking each success
// in last_populated, then runs the stale-user rescrape. One article's
// failure does not stop the rest.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	due, err := storage.DueScheduledArticles(s.db, time.Now())
	if err != nil {
		return err
	}

	for _, sa := range due {
		if _, _, err := s.populator.Populate(ctx, sa.Title); err != nil {
			s.log.WithError(err).Errorf("scheduled population of %q failed", sa.Title)
			continue
		}
		if err := storage.TouchScheduledArticle(s.db, sa.Title, time.Now()); err != nil {
			s.log.WithError(err).Errorf("recording population of %q", sa.Title)
			continue
		}
		s.log.Infof("populated %q on schedule", sa.Title)
	}

	if _, err := s.merger.RescrapeStaleUsers(ctx); err != nil {
		return err
	}

	return nil
}
