package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/pkg/errors"

	"github.com/wikihist/wikihist/internal/storage"
)

// Index wraps a Bleve search index over ingested article titles and
// contributor usernames.
type Index struct {
	index bleve.Index
}

// Entry is one searchable item.
type Entry struct {
	Kind      string // "article" or "user"
	Name      string
	IsBot     bool
	IsIP      bool
	IsBlocked bool
}

// Result is a scored search hit.
type Result struct {
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Open opens or creates a Bleve index at the given path.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, errors.Wrap(err, "create index")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "open index")
	}

	return &Index{index: idx}, nil
}

// OpenMemory creates an in-memory index, used by tests.
func OpenMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "create memory index")
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	nameFieldMapping := bleve.NewTextFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Kind", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("Name", nameFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexArticle adds or updates an article title.
func (i *Index) IndexArticle(title string) error {
	return i.index.Index("article:"+title, &Entry{Kind: "article", Name: title})
}

// IndexContributor adds or updates a contributor username.
func (i *Index) IndexContributor(username string, isBot, isIP, isBlocked bool) error {
	return i.index.Index("user:"+username, &Entry{
		Kind:      "user",
		Name:      username,
		IsBot:     isBot,
		IsIP:      isIP,
		IsBlocked: isBlocked,
	})
}

// Search runs a query-string search over titles and usernames.
func (i *Index) Search(queryStr string, limit int) ([]Result, error) {
	query := bleve.NewQueryStringQuery(queryStr)

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Fields = []string{"Kind", "Name"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{Score: hit.Score}
		if kind, ok := hit.Fields["Kind"].(string); ok {
			r.Kind = kind
		}
		if name, ok := hit.Fields["Name"].(string); ok {
			r.Name = name
		}
		results = append(results, r)
	}

	return results, nil
}

// Rebuild reindexes every article and contributor from storage.
func (i *Index) Rebuild(db *storage.DB) error {
	articles, err := storage.AllArticles(db)
	if err != nil {
		return errors.Wrap(err, "list articles")
	}
	users, err := storage.AllUsers(db)
	if err != nil {
		return errors.Wrap(err, "list users")
	}

	batch := i.index.NewBatch()
	for _, a := range articles {
		if err := batch.Index("article:"+a.Title, &Entry{Kind: "article", Name: a.Title}); err != nil {
			return errors.Wrapf(err, "batch index article %q", a.Title)
		}
	}
	for _, u := range users {
		entry := &Entry{Kind: "user", Name: u.Username, IsBot: u.IsBot, IsIP: u.IsIP, IsBlocked: u.IsBlocked}
		if err := batch.Index("user:"+u.Username, entry); err != nil {
			return errors.Wrapf(err, "batch index user %q", u.Username)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return errors.Wrap(err, "commit batch")
	}

	return nil
}

// Count returns the number of entries in the index.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
