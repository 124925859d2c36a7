package storage

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// UserFilter restricts and orders the contributor listing.
type UserFilter struct {
	ArticleTitle     string
	BotsOnly         bool
	IPsOnly          bool
	BlockedOnly      bool
	ActiveWithinDays int
	Sort             string // "contributions" (default) or "username"
}

// UserListing is a contributor row with its contribution count.
type UserListing struct {
	ID            int64  `db:"id"`
	Username      string `db:"username"`
	IsIP          bool   `db:"is_ip"`
	IsBot         bool   `db:"is_bot"`
	IsBlocked     bool   `db:"is_blocked"`
	Contributions int    `db:"contributions"`
}

func userFilterClauses(f UserFilter) (joins string, where string, args []interface{}) {
	var filters []string

	if f.ArticleTitle != "" {
		joins += `
			JOIN revisions fr ON fr.user_id = u.id
			JOIN articles fa ON fa.id = fr.article_id`
		filters = append(filters, "fa.title = ?")
		args = append(args, f.ArticleTitle)
	}

	if f.BotsOnly {
		filters = append(filters, "u.is_bot = 1")
	}
	if f.IPsOnly {
		filters = append(filters, "u.is_ip = 1")
	}
	if f.BlockedOnly {
		filters = append(filters, "u.is_blocked = 1")
	}

	if f.ActiveWithinDays > 0 {
		filters = append(filters,
			"u.id IN (SELECT user_id FROM revisions WHERE timestamp >= datetime('now', ?))")
		args = append(args, fmt.Sprintf("-%d days", f.ActiveWithinDays))
	}

	if len(filters) > 0 {
		where = "WHERE " + strings.Join(filters, " AND ")
	}

	return joins, where, args
}

// FetchUsers returns a filtered, paginated contributor listing.
func FetchUsers(e sqlx.Queryer, f UserFilter, limit, page int) ([]UserListing, error) {
	joins, where, args := userFilterClauses(f)

	order := "contributions DESC, u.username"
	if f.Sort == "username" {
		order = "u.username"
	}

	query := `
		SELECT u.id, u.username, u.is_ip, u.is_bot, u.is_blocked,
		       COUNT(DISTINCT r.id) AS contributions
		FROM users u
		LEFT JOIN revisions r ON r.user_id = u.id` + joins + `
		` + where + `
		GROUP BY u.id
		ORDER BY ` + order + `
		LIMIT ? OFFSET ?`
	args = append(args, limit, pageOffset(page, limit))

	users := []UserListing{}
	err := sqlx.Select(e, &users, query, args...)
	return users, err
}

// CountUsers returns the total row count FetchUsers would page over.
func CountUsers(e sqlx.Queryer, f UserFilter) (int, error) {
	joins, where, args := userFilterClauses(f)

	var count int
	err := sqlx.Get(e, &count, "SELECT COUNT(DISTINCT u.id) FROM users u"+joins+" "+where, args...)
	return count, err
}

// RevisionListing is a revision row joined with its article and author.
type RevisionListing struct {
	RevisionID   int64  `db:"revision_id"`
	ParentID     *int64 `db:"parent_id"`
	Timestamp    string `db:"timestamp"`
	Comment      string `db:"comment"`
	Flags        string `db:"flags"`
	SizeChange   *int   `db:"size_change"`
	Tags         string `db:"tags"`
	Username     string `db:"username"`
	ArticleTitle string `db:"article_title"`
}

const revisionListingColumns = `
	r.revision_id, r.parent_id, r.timestamp, r.comment, r.flags, r.size_change, r.tags,
	u.username, a.title AS article_title
	FROM revisions r
	JOIN articles a ON a.id = r.article_id
	JOIN users u ON u.id = r.user_id`

// FetchArticleRevisions returns one page of an article's revisions,
// newest first, together with the total count.
func FetchArticleRevisions(e sqlx.Queryer, title string, limit, page int) ([]RevisionListing, int, error) {
	revisions := []RevisionListing{}
	err := sqlx.Select(e, &revisions, `
		SELECT `+revisionListingColumns+`
		WHERE a.title = ?
		ORDER BY r.timestamp DESC
		LIMIT ? OFFSET ?`, title, limit, pageOffset(page, limit))
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = sqlx.Get(e, &total, `
		SELECT COUNT(*) FROM revisions r
		JOIN articles a ON a.id = r.article_id
		WHERE a.title = ?`, title)
	return revisions, total, err
}

// FetchUserRevisions returns one page of a contributor's revisions,
// newest first, together with the total count.
func FetchUserRevisions(e sqlx.Queryer, username string, limit, page int) ([]RevisionListing, int, error) {
	revisions := []RevisionListing{}
	err := sqlx.Select(e, &revisions, `
		SELECT `+revisionListingColumns+`
		WHERE u.username = ?
		ORDER BY r.timestamp DESC
		LIMIT ? OFFSET ?`, username, limit, pageOffset(page, limit))
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = sqlx.Get(e, &total, `
		SELECT COUNT(*) FROM revisions r
		JOIN users u ON u.id = r.user_id
		WHERE u.username = ?`, username)
	return revisions, total, err
}

// ArticleListing is an article row with ingestion aggregates.
type ArticleListing struct {
	ID          int64   `db:"id"`
	Title       string  `db:"title"`
	Revisions   int     `db:"revisions"`
	UniqueUsers int     `db:"unique_users"`
	LastEdited  *string `db:"last_edited"`
}

// FetchArticles returns one page of articles with revision counts,
// most-revised first.
func FetchArticles(e sqlx.Queryer, limit, page int) ([]ArticleListing, error) {
	articles := []ArticleListing{}
	err := sqlx.Select(e, &articles, `
		SELECT a.id, a.title,
		       COUNT(r.id) AS revisions,
		       COUNT(DISTINCT r.user_id) AS unique_users,
		       MAX(r.timestamp) AS last_edited
		FROM articles a
		LEFT JOIN revisions r ON r.article_id = a.id
		GROUP BY a.id
		ORDER BY revisions DESC, a.title
		LIMIT ? OFFSET ?`, limit, pageOffset(page, limit))
	return articles, err
}

// CountArticles returns the number of ingested articles.
func CountArticles(e sqlx.Queryer) (int, error) {
	var count int
	err := sqlx.Get(e, &count, "SELECT COUNT(*) FROM articles")
	return count, err
}

// UserStats summarizes a contributor's activity.
type UserStats struct {
	EditedArticles int     `db:"edited_articles"`
	FirstEdit      *string `db:"first_edit"`
	LastEdit       *string `db:"last_edit"`
}

// GetUserStats returns activity aggregates for one contributor.
func GetUserStats(e sqlx.Queryer, userID int64) (UserStats, error) {
	var stats UserStats
	err := sqlx.Get(e, &stats, `
		SELECT COUNT(DISTINCT article_id) AS edited_articles,
		       MIN(timestamp) AS first_edit,
		       MAX(timestamp) AS last_edit
		FROM revisions
		WHERE user_id = ?`, userID)
	return stats, err
}

// DashboardStats are the overview aggregates for the analytics surface.
type DashboardStats struct {
	TotalArticles  int              `json:"total_articles"`
	TotalUsers     int              `json:"total_users"`
	TotalRevisions int              `json:"total_revisions"`
	BotPercentage  float64          `json:"bot_percentage"`
	TopArticles    []ArticleListing `json:"top_articles"`
}

// GetDashboardStats computes the overview aggregates, including the top
// articles by revision count.
func GetDashboardStats(e sqlx.Queryer, topArticles int) (DashboardStats, error) {
	var stats DashboardStats

	if err := sqlx.Get(e, &stats.TotalArticles, "SELECT COUNT(*) FROM articles"); err != nil {
		return stats, err
	}
	if err := sqlx.Get(e, &stats.TotalUsers, "SELECT COUNT(*) FROM users"); err != nil {
		return stats, err
	}
	if err := sqlx.Get(e, &stats.TotalRevisions, "SELECT COUNT(*) FROM revisions"); err != nil {
		return stats, err
	}
	if err := sqlx.Get(e, &stats.BotPercentage, `
		SELECT COALESCE(ROUND(100.0 * SUM(is_bot) / COUNT(*), 1), 0) FROM users`); err != nil {
		return stats, err
	}

	top, err := FetchArticles(e, topArticles, 1)
	if err != nil {
		return stats, err
	}
	stats.TopArticles = top

	return stats, nil
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
