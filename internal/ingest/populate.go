package ingest

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/storage"
	"github.com/wikihist/wikihist/internal/wiki"
)

// Fetcher retrieves the full revision history for a title.
type Fetcher interface {
	FetchRevisions(ctx context.Context, title string) ([]wiki.Revision, error)
}

// Indexer receives newly merged articles and contributors. The search
// index implements it; a nil Indexer disables indexing.
type Indexer interface {
	IndexArticle(title string) error
	IndexContributor(username string, isBot, isIP, isBlocked bool) error
}

// Populator runs the whole ingestion flow for one title: validation,
// paginated fetch, transactional merge, then search indexing.
type Populator struct {
	fetcher Fetcher
	merger  *Merger
	db      *storage.DB
	index   Indexer
	log     *logrus.Logger
}

// NewPopulator wires the ingestion flow. index may be nil.
func NewPopulator(fetcher Fetcher, merger *Merger, db *storage.DB, index Indexer, log *logrus.Logger) *Populator {
	return &Populator{
		fetcher: fetcher,
		merger:  merger,
		db:      db,
		index:   index,
		log:     log,
	}
}

// Populate ingests one article end to end. The cleaned title is
// returned alongside the merge counts.
func (p *Populator) Populate(ctx context.Context, rawTitle string) (string, Stats, error) {
	title, err := wiki.CleanTitle(rawTitle)
	if err != nil {
		return "", Stats{}, err
	}

	revisions, err := p.fetcher.FetchRevisions(ctx, title)
	if err != nil {
		return title, Stats{}, err
	}

	stats, err := p.merger.MergeArticle(ctx, title, revisions)
	if err != nil {
		return title, stats, err
	}

	p.indexMerged(title, revisions)

	return title, stats, nil
}

// indexMerged feeds the search index from committed state. Index
// failures are logged, not escalated: search lags behind storage rather
// than failing an ingestion that already committed.
func (p *Populator) indexMerged(title string, revisions []wiki.Revision) {
	if p.index == nil {
		return
	}

	if err := p.index.IndexArticle(title); err != nil {
		p.log.WithError(err).Warnf("indexing article %q", title)
	}

	seen := map[string]bool{}
	for _, rev := range revisions {
		if rev.User == "" || seen[rev.User] {
			continue
		}
		seen[rev.User] = true

		u, err := storage.GetUserByUsername(p.db, rev.User)
		if err != nil || u == nil {
			continue
		}
		if err := p.index.IndexContributor(u.Username, u.IsBot, u.IsIP, u.IsBlocked); err != nil {
			p.log.WithError(err).Warnf("indexing contributor %q", u.Username)
		}
	}
}
