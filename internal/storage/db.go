package storage

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DB wraps SQLite database operations
type DB struct {
	*sqlx.DB

	log *logrus.Logger
}

// Open opens or creates a SQLite database and ensures the schema exists.
func Open(path string, log *logrus.Logger) (*DB, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// Scheduled and interactive writers contend for this database, so
	// enable WAL and a busy timeout alongside referential integrity.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, errors.Wrapf(err, "exec %q", pragma)
		}
	}

	// SQLite serializes writes anyway; a single connection keeps the
	// pragmas and transactions on one handle.
	db.SetMaxOpenConns(1)

	storage := &DB{DB: db, log: log}

	if err := storage.initSchema(); err != nil {
		return nil, errors.Wrap(err, "init schema")
	}

	return storage, nil
}

// initSchema creates tables and indexes if they don't exist. Evolution is
// additive only; nothing here drops or rewrites existing data.
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_user_id INTEGER,
		username TEXT UNIQUE,
		is_ip BOOLEAN DEFAULT 0,
		is_bot BOOLEAN DEFAULT 0,
		is_blocked BOOLEAN DEFAULT 0,
		is_scraped BOOLEAN DEFAULT 0,
		last_updated TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS revisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		revision_id INTEGER UNIQUE,
		article_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		timestamp TEXT,
		comment TEXT,
		parent_id INTEGER,
		flags TEXT,
		size_change INTEGER,
		tags TEXT,
		is_scraped BOOLEAN DEFAULT 0,
		FOREIGN KEY(article_id) REFERENCES articles(id),
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS scheduled_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT UNIQUE NOT NULL,
		interval_hours INTEGER DEFAULT 24,
		last_populated TIMESTAMP,
		is_active BOOLEAN DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	CREATE INDEX IF NOT EXISTS idx_users_scraped ON users(is_scraped);
	CREATE INDEX IF NOT EXISTS idx_revisions_scraped ON revisions(is_scraped);
	CREATE INDEX IF NOT EXISTS idx_revisions_article ON revisions(article_id);
	CREATE INDEX IF NOT EXISTS idx_revisions_user ON revisions(user_id);
	`

	_, err := d.Exec(schema)
	return err
}
