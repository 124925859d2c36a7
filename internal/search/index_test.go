package search

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/storage"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenMemory()
	if err != nil {
		t.Fatalf("opening memory index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchFindsArticlesAndContributors(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.IndexArticle("Albert Einstein"); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexContributor("Einstein admirer", false, false, false); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexContributor("BobBot", true, false, false); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search("einstein", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	kinds := map[string]string{}
	for _, r := range results {
		kinds[r.Name] = r.Kind
		if r.Score <= 0 {
			t.Errorf("hit %q has non-positive score %v", r.Name, r.Score)
		}
	}
	if kinds["Albert Einstein"] != "article" {
		t.Errorf("article hit missing or miskinded: %v", kinds)
	}
	if kinds["Einstein admirer"] != "user" {
		t.Errorf("contributor hit missing or miskinded: %v", kinds)
	}
	if _, ok := kinds["BobBot"]; ok {
		t.Error("unrelated contributor matched")
	}
}

func TestIndexIsUpsert(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.IndexArticle("France"); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexArticle("France"); err != nil {
		t.Fatal(err)
	}

	count, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1 after reindexing the same title", count)
	}
}

func TestSearchLimit(t *testing.T) {
	idx := newTestIndex(t)

	for _, title := range []string{"France", "France culture", "France info"} {
		if err := idx.IndexArticle(title); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Search("france", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestRebuildFromStorage(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	db, err := storage.Open(":memory:", log)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := storage.UpsertArticle(db, "Israël"); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.UpsertUser(db, storage.User{Username: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.UpsertUser(db, storage.User{Username: "BobBot", IsBot: true}); err != nil {
		t.Fatal(err)
	}

	idx := newTestIndex(t)
	if err := idx.Rebuild(db); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	count, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	results, err := idx.Search("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Kind != "user" || results[0].Name != "Alice" {
		t.Errorf("results = %+v, want the one contributor", results)
	}
}
