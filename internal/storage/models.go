package storage

import "time"

// Article is a mirrored wiki article. Rows are created on first
// ingestion of a title and never mutated afterwards.
type Article struct {
	ID    int64  `db:"id"`
	Title string `db:"title"`
}

// User is a contributor classification record. (IsIP, IsBot, IsBlocked)
// reflect the most recent successful resolution; IsScraped plus a
// non-null LastUpdated assert the record is fresh as of that time.
type User struct {
	ID           int64      `db:"id"`
	RemoteUserID *int64     `db:"remote_user_id"`
	Username     string     `db:"username"`
	IsIP         bool       `db:"is_ip"`
	IsBot        bool       `db:"is_bot"`
	IsBlocked    bool       `db:"is_blocked"`
	IsScraped    bool       `db:"is_scraped"`
	LastUpdated  *time.Time `db:"last_updated"`
}

// Revision is one edit of an article, keyed by the source-assigned
// RevisionID. Rows are immutable once inserted.
type Revision struct {
	ID         int64  `db:"id"`
	RevisionID int64  `db:"revision_id"`
	ArticleID  int64  `db:"article_id"`
	UserID     int64  `db:"user_id"`
	Timestamp  string `db:"timestamp"`
	Comment    string `db:"comment"`
	ParentID   *int64 `db:"parent_id"`
	Flags      string `db:"flags"`
	SizeChange *int   `db:"size_change"`
	Tags       string `db:"tags"`
	IsScraped  bool   `db:"is_scraped"`
}

// ScheduledArticle is a title the scheduler repopulates on an interval.
type ScheduledArticle struct {
	ID            int64      `db:"id"`
	Title         string     `db:"title"`
	IntervalHours int        `db:"interval_hours"`
	LastPopulated *time.Time `db:"last_populated"`
	IsActive      bool       `db:"is_active"`
}
