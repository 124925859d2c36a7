package storage

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// UpsertArticle inserts the title if absent and returns the row id in
// one statement, so there is no window between insert and lookup.
func UpsertArticle(e sqlx.Ext, title string) (int64, error) {
	var id int64
	err := e.QueryRowx(`
		INSERT INTO articles (title) VALUES (?)
		ON CONFLICT(title) DO UPDATE SET title = excluded.title
		RETURNING id`, title).Scan(&id)
	return id, err
}

// AllArticles returns every article row.
func AllArticles(e sqlx.Queryer) ([]Article, error) {
	var articles []Article
	err := sqlx.Select(e, &articles, "SELECT id, title FROM articles ORDER BY id")
	return articles, err
}

// GetArticleByTitle returns the article row, or nil when absent.
func GetArticleByTitle(e sqlx.Queryer, title string) (*Article, error) {
	var a Article
	err := sqlx.Get(e, &a, "SELECT id, title FROM articles WHERE title = ?", title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
