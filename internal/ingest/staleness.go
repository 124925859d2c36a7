package ingest

import (
	"time"

	"github.com/wikihist/wikihist/internal/storage"
)

// DefaultStaleness is the freshness window for cached classifications.
const DefaultStaleness = 7 * 24 * time.Hour

// fresh reports whether a stored classification can be reused without a
// resolver call: the row must exist, be marked scraped, carry a
// last_updated timestamp, and be strictly younger than the window.
func fresh(u *storage.User, now time.Time, window time.Duration) bool {
	if u == nil || !u.IsScraped || u.LastUpdated == nil {
		return false
	}
	return now.Sub(*u.LastUpdated) < window
}
