package ingest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/storage"
	"github.com/wikihist/wikihist/internal/wiki"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:", testLogger())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stubResolver returns canned classifications and counts invocations.
type stubResolver struct {
	calls int
	cls   map[string]Classification
	err   error
}

func (s *stubResolver) Resolve(ctx context.Context, username string) (Classification, error) {
	s.calls++
	if s.err != nil {
		return Classification{}, s.err
	}
	return s.cls[username], nil
}

func testRevisions() []wiki.Revision {
	change := 100
	return []wiki.Revision{
		{ID: 30, ParentID: 20, Timestamp: "2024-05-01 12:00:00", User: "Alice", Comment: "fix", SizeChange: &change},
		{ID: 20, ParentID: 10, Timestamp: "2024-04-30 08:30:00", User: "BobBot", Comment: "revert"},
		{ID: 10, Timestamp: "2024-04-29 23:59:59", User: "10.0.0.1", Comment: "start"},
	}
}

func countRows(t *testing.T, db *storage.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestMergeArticleEndToEnd(t *testing.T) {
	db := newTestDB(t)

	lookup := &mapLookup{users: map[string]*wiki.RemoteUser{
		"Alice":  {ID: int64p(1), Groups: []string{"user"}},
		"BobBot": {ID: int64p(2), Groups: []string{"bot"}},
	}}
	merger := NewMerger(db, NewResolver(lookup), 0, testLogger())

	stats, err := merger.MergeArticle(context.Background(), "Israël", testRevisions())
	if err != nil {
		t.Fatalf("MergeArticle() error = %v", err)
	}

	if stats.RevisionsInserted != 3 || stats.LookupsMade != 3 {
		t.Errorf("stats = %+v, want 3 inserted, 3 lookups", stats)
	}

	if n := countRows(t, db, "articles"); n != 1 {
		t.Errorf("articles = %d, want 1", n)
	}
	if n := countRows(t, db, "revisions"); n != 3 {
		t.Errorf("revisions = %d, want 3", n)
	}

	// The IP contributor never reached the remote lookup.
	if lookup.calls != 2 {
		t.Errorf("remote lookups = %d, want 2", lookup.calls)
	}

	want := map[string]struct{ isBot, isIP bool }{
		"Alice":    {false, false},
		"BobBot":   {true, false},
		"10.0.0.1": {false, true},
	}
	for username, w := range want {
		u, err := storage.GetUserByUsername(db, username)
		if err != nil || u == nil {
			t.Fatalf("user %q not found: %v", username, err)
		}
		if u.IsBot != w.isBot || u.IsIP != w.isIP {
			t.Errorf("user %q = {is_bot: %v, is_ip: %v}, want {%v, %v}", username, u.IsBot, u.IsIP, w.isBot, w.isIP)
		}
		if !u.IsScraped || u.LastUpdated == nil {
			t.Errorf("user %q not marked fresh after merge", username)
		}
	}

	// Every revision links the one article row.
	var distinct int
	if err := db.Get(&distinct, "SELECT COUNT(DISTINCT article_id) FROM revisions"); err != nil {
		t.Fatal(err)
	}
	if distinct != 1 {
		t.Errorf("revisions reference %d articles, want 1", distinct)
	}
}

// mapLookup serves RemoteUser fixtures by username.
type mapLookup struct {
	users map[string]*wiki.RemoteUser
	calls int
}

func (m *mapLookup) LookupUser(ctx context.Context, username string) (*wiki.RemoteUser, error) {
	m.calls++
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return &wiki.RemoteUser{Missing: true}, nil
}

func TestMergeArticleIdempotent(t *testing.T) {
	db := newTestDB(t)
	resolver := &stubResolver{cls: map[string]Classification{}}
	merger := NewMerger(db, resolver, 0, testLogger())

	revs := testRevisions()
	if _, err := merger.MergeArticle(context.Background(), "Israël", revs); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	articles, users, revisions := countRows(t, db, "articles"), countRows(t, db, "users"), countRows(t, db, "revisions")

	stats, err := merger.MergeArticle(context.Background(), "Israël", revs)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	if stats.RevisionsInserted != 0 || stats.RevisionsIgnored != 3 {
		t.Errorf("second merge stats = %+v, want 0 inserted, 3 ignored", stats)
	}
	if countRows(t, db, "articles") != articles ||
		countRows(t, db, "users") != users ||
		countRows(t, db, "revisions") != revisions {
		t.Error("second merge changed row counts")
	}
}

func TestMergeSkipsMissingUsername(t *testing.T) {
	db := newTestDB(t)
	resolver := &stubResolver{}
	merger := NewMerger(db, resolver, 0, testLogger())

	revs := []wiki.Revision{
		{ID: 2, Timestamp: "2024-01-02 00:00:00", User: "Alice"},
		{ID: 1, Timestamp: "2024-01-01 00:00:00", User: ""},
	}

	stats, err := merger.MergeArticle(context.Background(), "Israël", revs)
	if err != nil {
		t.Fatalf("MergeArticle() error = %v", err)
	}

	if stats.RevisionsInserted != 1 || stats.RevisionsSkipped != 1 {
		t.Errorf("stats = %+v, want 1 inserted, 1 skipped", stats)
	}
	if n := countRows(t, db, "revisions"); n != 1 {
		t.Errorf("revisions = %d, want 1", n)
	}
}

func TestMergeFreshUserSkipsResolver(t *testing.T) {
	db := newTestDB(t)
	resolver := &stubResolver{}
	merger := NewMerger(db, resolver, 0, testLogger())

	first := []wiki.Revision{{ID: 1, Timestamp: "2024-01-01 00:00:00", User: "Alice"}}
	if _, err := merger.MergeArticle(context.Background(), "Israël", first); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver calls after first merge = %d, want 1", resolver.calls)
	}

	// Alice is fresh now; a later batch must reuse the cached record.
	second := []wiki.Revision{{ID: 2, Timestamp: "2024-01-02 00:00:00", User: "Alice"}}
	stats, err := merger.MergeArticle(context.Background(), "Israël", second)
	if err != nil {
		t.Fatal(err)
	}

	if resolver.calls != 1 {
		t.Errorf("resolver calls = %d, want still 1", resolver.calls)
	}
	if stats.LookupsSkipped != 1 || stats.LookupsMade != 0 {
		t.Errorf("stats = %+v, want 1 skipped, 0 made", stats)
	}
}

func TestMergeStaleUserIsReResolved(t *testing.T) {
	db := newTestDB(t)
	resolver := &stubResolver{cls: map[string]Classification{
		"Alice": {IsBlocked: true},
	}}
	merger := NewMerger(db, resolver, 0, testLogger())

	stale := time.Now().Add(-8 * 24 * time.Hour)
	if _, err := storage.UpsertUser(db, storage.User{
		Username: "Alice", IsScraped: true, LastUpdated: &stale,
	}); err != nil {
		t.Fatal(err)
	}

	revs := []wiki.Revision{{ID: 1, Timestamp: "2024-01-01 00:00:00", User: "Alice"}}
	stats, err := merger.MergeArticle(context.Background(), "Israël", revs)
	if err != nil {
		t.Fatal(err)
	}

	if stats.LookupsMade != 1 {
		t.Errorf("LookupsMade = %d, want 1", stats.LookupsMade)
	}

	u, err := storage.GetUserByUsername(db, "Alice")
	if err != nil || u == nil {
		t.Fatalf("user lookup: %v", err)
	}
	if !u.IsBlocked {
		t.Error("stale classification was not refreshed")
	}
	if u.LastUpdated == nil || !u.LastUpdated.After(stale) {
		t.Error("last_updated was not advanced")
	}
}

func TestMergeDuplicateRevisionPreservesOriginal(t *testing.T) {
	db := newTestDB(t)
	resolver := &stubResolver{}
	merger := NewMerger(db, resolver, 0, testLogger())

	original := []wiki.Revision{{ID: 10, Timestamp: "2024-01-01 00:00:00", User: "Alice", Comment: "original"}}
	if _, err := merger.MergeArticle(context.Background(), "Israël", original); err != nil {
		t.Fatal(err)
	}

	conflicting := []wiki.Revision{{ID: 10, Timestamp: "2024-06-01 00:00:00", User: "Alice", Comment: "rewritten"}}
	stats, err := merger.MergeArticle(context.Background(), "Israël", conflicting)
	if err != nil {
		t.Fatal(err)
	}

	if stats.RevisionsIgnored != 1 || stats.RevisionsInserted != 0 {
		t.Errorf("stats = %+v, want the duplicate ignored", stats)
	}

	r, err := storage.GetRevisionByNaturalID(db, 10)
	if err != nil || r == nil {
		t.Fatalf("revision lookup: %v", err)
	}
	if r.Comment != "original" || r.Timestamp != "2024-01-01 00:00:00" {
		t.Errorf("revision was overwritten: %+v", r)
	}
}

func TestMergeResolverFallbackStillWrites(t *testing.T) {
	db := newTestDB(t)
	resolver := &stubResolver{err: context.DeadlineExceeded}
	merger := NewMerger(db, resolver, 0, testLogger())

	revs := []wiki.Revision{{ID: 1, Timestamp: "2024-01-01 00:00:00", User: "Alice"}}
	stats, err := merger.MergeArticle(context.Background(), "Israël", revs)
	if err != nil {
		t.Fatalf("MergeArticle() error = %v, resolver failures must not abort the batch", err)
	}

	if stats.RevisionsInserted != 1 {
		t.Errorf("stats = %+v, want the revision written", stats)
	}

	u, err := storage.GetUserByUsername(db, "Alice")
	if err != nil || u == nil {
		t.Fatalf("user lookup: %v", err)
	}
	if u.IsBot || u.IsIP || u.IsBlocked || u.RemoteUserID != nil {
		t.Errorf("user = %+v, want the neutral classification", u)
	}
	if !u.IsScraped || u.LastUpdated == nil {
		t.Error("neutral record must still be marked scraped with a timestamp")
	}
}
