package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/storage"
	"github.com/wikihist/wikihist/internal/wiki"
)

// ErrArticleResolution marks a merge aborted because the article row
// could not be resolved after its upsert. No revisions are written.
var ErrArticleResolution = errors.New("article row could not be resolved")

// Merger folds fetched revision history into the relational store.
type Merger struct {
	db        *storage.DB
	resolver  Resolver
	staleness time.Duration
	log       *logrus.Logger

	now func() time.Time
}

// NewMerger creates a merge engine. A non-positive staleness falls back
// to the 7-day default.
func NewMerger(db *storage.DB, resolver Resolver, staleness time.Duration, log *logrus.Logger) *Merger {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Merger{
		db:        db,
		resolver:  resolver,
		staleness: staleness,
		log:       log,
		now:       time.Now,
	}
}

// Stats counts the observable work of one merge batch.
type Stats struct {
	LookupsMade       int // resolver invocations
	LookupsSkipped    int // fresh cached classifications reused
	RevisionsInserted int
	RevisionsIgnored  int // natural-key duplicates
	RevisionsSkipped  int // missing username or unresolvable user row
}

// MergeArticle upserts the article row and merges the fetched revisions
// in one transaction. Re-running with the same title and overlapping
// revisions never duplicates data: users are upserted by username and
// revisions insert-or-ignore on their natural id. A storage failure
// rolls the whole batch back.
func (m *Merger) MergeArticle(ctx context.Context, title string, revisions []wiki.Revision) (Stats, error) {
	var stats Stats

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin merge batch: %w", err)
	}
	defer tx.Rollback()

	articleID, err := storage.UpsertArticle(tx, title)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrArticleResolution, err)
	}

	for _, rev := range revisions {
		if rev.User == "" {
			m.log.Warnf("skipping revision %d of %q: missing username", rev.ID, title)
			stats.RevisionsSkipped++
			continue
		}

		userID, err := m.resolveUser(ctx, tx, rev.User, &stats)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				m.log.Warnf("skipping revision %d of %q: user %q did not resolve", rev.ID, title, rev.User)
				stats.RevisionsSkipped++
				continue
			}
			return stats, fmt.Errorf("upserting user %q: %w", rev.User, err)
		}

		var parentID *int64
		if rev.ParentID != 0 {
			p := rev.ParentID
			parentID = &p
		}

		inserted, err := storage.InsertRevision(tx, storage.Revision{
			RevisionID: rev.ID,
			ArticleID:  articleID,
			UserID:     userID,
			Timestamp:  rev.Timestamp,
			Comment:    rev.Comment,
			ParentID:   parentID,
			Flags:      rev.Flags,
			SizeChange: rev.SizeChange,
			Tags:       rev.Tags,
			IsScraped:  true,
		})
		if err != nil {
			return stats, fmt.Errorf("inserting revision %d: %w", rev.ID, err)
		}
		if inserted {
			stats.RevisionsInserted++
		} else {
			stats.RevisionsIgnored++
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit merge batch: %w", err)
	}

	m.log.Infof("merged %q: %d lookups (%d cached), %d revisions inserted, %d ignored, %d skipped",
		title, stats.LookupsMade, stats.LookupsSkipped,
		stats.RevisionsInserted, stats.RevisionsIgnored, stats.RevisionsSkipped)

	return stats, nil
}

// resolveUser reuses a fresh cached classification or invokes the
// resolver and persists a refreshed record.
func (m *Merger) resolveUser(ctx context.Context, tx *sqlx.Tx, username string, stats *Stats) (int64, error) {
	cached, err := storage.GetUserByUsername(tx, username)
	if err != nil {
		return 0, err
	}

	now := m.now()
	if fresh(cached, now, m.staleness) {
		stats.LookupsSkipped++
		return cached.ID, nil
	}

	stats.LookupsMade++
	cls, rerr := m.resolver.Resolve(ctx, username)
	if rerr != nil {
		// Fail-open for classification: the neutral record is persisted
		// and the merge continues.
		m.log.WithError(rerr).Warnf("classification fallback for %q", username)
	}

	return storage.UpsertUser(tx, storage.User{
		RemoteUserID: cls.RemoteID,
		Username:     username,
		IsIP:         cls.IsIP,
		IsBot:        cls.IsBot,
		IsBlocked:    cls.IsBlocked,
		IsScraped:    true,
		LastUpdated:  &now,
	})
}
