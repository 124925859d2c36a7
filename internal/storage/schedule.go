package storage

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// UpsertScheduledArticle adds a title to the population schedule or
// updates its interval.
func UpsertScheduledArticle(e sqlx.Ext, title string, intervalHours int) error {
	_, err := e.Exec(`
		INSERT INTO scheduled_articles (title, interval_hours, is_active) VALUES (?, ?, 1)
		ON CONFLICT(title) DO UPDATE SET interval_hours = excluded.interval_hours`,
		title, intervalHours)
	return err
}

// DeleteScheduledArticle removes a title from the schedule.
func DeleteScheduledArticle(e sqlx.Ext, title string) error {
	_, err := e.Exec("DELETE FROM scheduled_articles WHERE title = ?", title)
	return err
}

// ToggleScheduledArticle flips the active flag for a title.
func ToggleScheduledArticle(e sqlx.Ext, title string) error {
	_, err := e.Exec("UPDATE scheduled_articles SET is_active = NOT is_active WHERE title = ?", title)
	return err
}

// TouchScheduledArticle records a successful population.
func TouchScheduledArticle(e sqlx.Ext, title string, at time.Time) error {
	_, err := e.Exec("UPDATE scheduled_articles SET last_populated = ? WHERE title = ?", at, title)
	return err
}

// ListScheduledArticles returns the whole schedule.
func ListScheduledArticles(e sqlx.Queryer) ([]ScheduledArticle, error) {
	var scheduled []ScheduledArticle
	err := sqlx.Select(e, &scheduled, `
		SELECT id, title, interval_hours, last_populated, is_active
		FROM scheduled_articles ORDER BY title`)
	return scheduled, err
}

// DueScheduledArticles returns active titles never populated or whose
// interval has elapsed as of now.
func DueScheduledArticles(e sqlx.Queryer, now time.Time) ([]ScheduledArticle, error) {
	var due []ScheduledArticle
	err := sqlx.Select(e, &due, `
		SELECT id, title, interval_hours, last_populated, is_active
		FROM scheduled_articles
		WHERE is_active = 1 AND (
			last_populated IS NULL OR
			datetime(last_populated, '+' || interval_hours || ' hours') < datetime(?)
		)
		ORDER BY title`, now.UTC())
	return due, err
}
