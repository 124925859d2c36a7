package sched

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/ingest"
	"github.com/wikihist/wikihist/internal/storage"
	"github.com/wikihist/wikihist/internal/wiki"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// recordingFetcher serves one fixed revision per title and records the
// titles it was asked for.
type recordingFetcher struct {
	titles []string
	fail   map[string]bool
}

func (f *recordingFetcher) FetchRevisions(ctx context.Context, title string) ([]wiki.Revision, error) {
	f.titles = append(f.titles, title)
	if f.fail[title] {
		return nil, errors.New("fetch failed")
	}
	return []wiki.Revision{
		{ID: int64(len(f.titles)), Timestamp: "2024-01-01 10:00:00", User: "Alice"},
	}, nil
}

type neutralResolver struct{}

func (neutralResolver) Resolve(ctx context.Context, username string) (ingest.Classification, error) {
	return ingest.Classification{}, nil
}

func newTestScheduler(t *testing.T, fetcher ingest.Fetcher) (*Scheduler, *storage.DB) {
	t.Helper()

	log := testLogger()
	db, err := storage.Open(":memory:", log)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	merger := ingest.NewMerger(db, neutralResolver{}, 0, log)
	populator := ingest.NewPopulator(fetcher, merger, db, nil, log)

	return New(db, populator, merger, time.Minute, log), db
}

func TestRunOncePopulatesDueArticles(t *testing.T) {
	fetcher := &recordingFetcher{}
	s, db := newTestScheduler(t, fetcher)

	if err := storage.UpsertScheduledArticle(db, "Israël", 24); err != nil {
		t.Fatal(err)
	}
	if err := storage.UpsertScheduledArticle(db, "France", 24); err != nil {
		t.Fatal(err)
	}
	if err := storage.TouchScheduledArticle(db, "France", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(fetcher.titles) != 1 || fetcher.titles[0] != "Israël" {
		t.Errorf("fetched titles = %v, want only the due article", fetcher.titles)
	}

	scheduled, err := storage.ListScheduledArticles(db)
	if err != nil {
		t.Fatal(err)
	}
	for _, sa := range scheduled {
		if sa.LastPopulated == nil {
			t.Errorf("entry %q has no last_populated", sa.Title)
		}
	}

	// The due article was actually ingested.
	article, err := storage.GetArticleByTitle(db, "Israël")
	if err != nil || article == nil {
		t.Errorf("article not persisted: %v", err)
	}
}

func TestRunOnceContinuesPastFailure(t *testing.T) {
	fetcher := &recordingFetcher{fail: map[string]bool{"France": true}}
	s, db := newTestScheduler(t, fetcher)

	if err := storage.UpsertScheduledArticle(db, "France", 24); err != nil {
		t.Fatal(err)
	}
	if err := storage.UpsertScheduledArticle(db, "Israël", 24); err != nil {
		t.Fatal(err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v, one failed article must not fail the sweep", err)
	}

	if len(fetcher.titles) != 2 {
		t.Errorf("fetched titles = %v, want both attempts", fetcher.titles)
	}

	// The failed title stays due for the next sweep.
	due, err := storage.DueScheduledArticles(db, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].Title != "France" {
		t.Errorf("due = %+v, want only the failed article", due)
	}
}

func TestRunOnceRescrapesStaleUsers(t *testing.T) {
	s, db := newTestScheduler(t, &recordingFetcher{})

	stale := time.Now().Add(-30 * 24 * time.Hour)
	if _, err := storage.UpsertUser(db, storage.User{
		Username: "Old", IsScraped: true, LastUpdated: &stale,
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	u, err := storage.GetUserByUsername(db, "Old")
	if err != nil || u == nil {
		t.Fatalf("user lookup: %v", err)
	}
	if u.LastUpdated == nil || !u.LastUpdated.After(stale) {
		t.Error("stale user was not refreshed by the sweep")
	}
}
