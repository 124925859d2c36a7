package storage

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// GetUserByUsername returns the stored classification record, or nil
// when the username has never been seen.
func GetUserByUsername(e sqlx.Queryer, username string) (*User, error) {
	var u User
	err := sqlx.Get(e, &u, `
		SELECT id, remote_user_id, username, is_ip, is_bot, is_blocked, is_scraped, last_updated
		FROM users WHERE username = ?`, username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts a new user row or refreshes every classification
// field of an existing one, keyed by username, returning the row id.
func UpsertUser(e sqlx.Ext, u User) (int64, error) {
	var id int64
	err := e.QueryRowx(`
		INSERT INTO users (remote_user_id, username, is_ip, is_bot, is_blocked, is_scraped, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			remote_user_id = excluded.remote_user_id,
			is_ip = excluded.is_ip,
			is_bot = excluded.is_bot,
			is_blocked = excluded.is_blocked,
			is_scraped = excluded.is_scraped,
			last_updated = excluded.last_updated
		RETURNING id`,
		u.RemoteUserID, u.Username, u.IsIP, u.IsBot, u.IsBlocked, u.IsScraped, u.LastUpdated,
	).Scan(&id)
	return id, err
}

// AllUsers returns every user row.
func AllUsers(e sqlx.Queryer) ([]User, error) {
	var users []User
	err := sqlx.Select(e, &users, `
		SELECT id, remote_user_id, username, is_ip, is_bot, is_blocked, is_scraped, last_updated
		FROM users ORDER BY id`)
	return users, err
}

// StaleUsers selects every user whose classification is older than the
// cutoff, never-resolved users first, then oldest first.
func StaleUsers(e sqlx.Queryer, cutoff time.Time) ([]User, error) {
	var users []User
	err := sqlx.Select(e, &users, `
		SELECT id, remote_user_id, username, is_ip, is_bot, is_blocked, is_scraped, last_updated
		FROM users
		WHERE last_updated IS NULL OR last_updated < ?
		ORDER BY last_updated ASC NULLS FIRST`, cutoff)
	return users, err
}
