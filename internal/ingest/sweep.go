package ingest

import (
	"context"
	"fmt"

	"github.com/wikihist/wikihist/internal/storage"
)

// RescrapeStaleUsers re-resolves every user whose classification is
// older than the staleness window (never-resolved users first) and
// persists the refreshed records. One failed resolution degrades that
// user to the neutral classification instead of failing the sweep.
// Returns the number of users refreshed.
func (m *Merger) RescrapeStaleUsers(ctx context.Context) (int, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sweep: %w", err)
	}
	defer tx.Rollback()

	cutoff := m.now().Add(-m.staleness)
	stale, err := storage.StaleUsers(tx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("selecting stale users: %w", err)
	}

	refreshed := 0
	for _, u := range stale {
		cls, rerr := m.resolver.Resolve(ctx, u.Username)
		if rerr != nil {
			m.log.WithError(rerr).Warnf("classification fallback for %q", u.Username)
		}

		now := m.now()
		if _, err := storage.UpsertUser(tx, storage.User{
			RemoteUserID: cls.RemoteID,
			Username:     u.Username,
			IsIP:         cls.IsIP,
			IsBot:        cls.IsBot,
			IsBlocked:    cls.IsBlocked,
			IsScraped:    true,
			LastUpdated:  &now,
		}); err != nil {
			return 0, fmt.Errorf("refreshing user %q: %w", u.Username, err)
		}
		refreshed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sweep: %w", err)
	}

	m.log.Infof("rescrape sweep refreshed %d users", refreshed)
	return refreshed, nil
}
