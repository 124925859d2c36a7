package storage

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// InsertRevision inserts a revision keyed by its natural revision_id.
// A row with that revision_id already present is left untouched; the
// return value reports whether a row was actually inserted.
func InsertRevision(e sqlx.Ext, r Revision) (bool, error) {
	res, err := e.Exec(`
		INSERT INTO revisions (revision_id, article_id, user_id, timestamp, comment, parent_id, flags, size_change, tags, is_scraped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(revision_id) DO NOTHING`,
		r.RevisionID, r.ArticleID, r.UserID, r.Timestamp, r.Comment, r.ParentID, r.Flags, r.SizeChange, r.Tags, r.IsScraped,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetRevisionByNaturalID returns the stored row for a source revision
// id, or nil when absent.
func GetRevisionByNaturalID(e sqlx.Queryer, revisionID int64) (*Revision, error) {
	var r Revision
	err := sqlx.Get(e, &r, `
		SELECT id, revision_id, article_id, user_id, timestamp, comment, parent_id, flags, size_change, tags, is_scraped
		FROM revisions WHERE revision_id = ?`, revisionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
