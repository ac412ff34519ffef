package reminder

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	nameCacheSize = 1024
	nameTTL       = 10 * time.Minute
)

// NameSource looks up how a user is called, in a guild when guildID is set.
type NameSource interface {
	DisplayName(ctx context.Context, guildID, userID string) (string, error)
}

type cachedName struct {
	name      string
	fetchedAt time.Time
}

// Names caches display names. A failed lookup falls back to a stale cached
// value, then to the caller's fallback.
type Names struct {
	src   NameSource
	cache *lru.Cache
	now   func() time.Time
}

func NewNames(src NameSource) *Names {
	cache, _ := lru.New(nameCacheSize)
	return &Names{src: src, cache: cache, now: time.Now}
}

func (n *Names) Lookup(ctx context.Context, guildID, userID, fallback string) string {
	key := guildID + "|" + userID
	var stale string
	if v, ok := n.cache.Get(key); ok {
		c := v.(cachedName)
		if n.now().Sub(c.fetchedAt) < nameTTL {
			return c.name
		}
		stale = c.name
	}
	if n.src != nil {
		if name, err := n.src.DisplayName(ctx, guildID, userID); err == nil && name != "" {
			n.cache.Add(key, cachedName{name: name, fetchedAt: n.now()})
			return name
		}
	}
	switch {
	case stale != "":
		return stale
	case fallback != "":
		return fallback
	}
	return userID
}
