package ingest

import (
	"context"
	"net/netip"
	"strings"

	"github.com/wikihist/wikihist/internal/wiki"
)

// Classification is a resolved contributor record, ready to persist on
// the users table.
type Classification struct {
	IsIP      bool
	IsBot     bool
	IsBlocked bool
	RemoteID  *int64
}

// UserLookup is the remote side of contributor resolution.
type UserLookup interface {
	LookupUser(ctx context.Context, username string) (*wiki.RemoteUser, error)
}

// Resolver classifies a contributor by username. Resolve always returns
// a usable record: on any lookup failure it falls back to the neutral
// classification and reports the cause alongside, so callers can log it
// and tests can assert the fallback was taken.
type Resolver interface {
	Resolve(ctx context.Context, username string) (Classification, error)
}

type remoteResolver struct {
	lookup UserLookup
}

// NewResolver builds the production resolver on top of the wiki client.
func NewResolver(lookup UserLookup) Resolver {
	return remoteResolver{lookup: lookup}
}

func (r remoteResolver) Resolve(ctx context.Context, username string) (Classification, error) {
	if username == "" {
		return Classification{}, nil
	}

	// IP contributors are never looked up remotely and never bots.
	if _, err := netip.ParseAddr(username); err == nil {
		return Classification{IsIP: true}, nil
	}

	remote, err := r.lookup.LookupUser(ctx, username)
	if err != nil {
		return Classification{}, err
	}
	if remote.Missing {
		return Classification{}, nil
	}

	return Classification{
		IsBot:     hasBotGroup(remote.Groups) || hasBotSuffix(username),
		IsBlocked: remote.Blocked,
		RemoteID:  remote.ID,
	}, nil
}

func hasBotGroup(groups []string) bool {
	for _, g := range groups {
		if g == "bot" {
			return true
		}
	}
	return false
}

// hasBotSuffix catches legacy bot accounts that never joined the bot
// group.
func hasBotSuffix(username string) bool {
	return strings.HasSuffix(strings.ToLower(username), "bot")
}
