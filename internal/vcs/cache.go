package vcs

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/promptforge/promptforge/internal/types"
)

const (
	defaultCacheEntries = 1024
	defaultCacheTTL     = 30 * time.Second
)

// headCache holds branch-head contents keyed by repository and branch with
// a bounded TTL. It is owned by the engine alone; nothing else reads or
// writes it. Entries remember the head commit they were cached for, so a
// stale entry can never be served for a moved head.
type headCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

type cachedHead struct {
	commitID string
	commit   types.Commit
}

func newHeadCache(entries int64, ttl time.Duration) (*headCache, error) {
	if entries <= 0 {
		entries = defaultCacheEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &headCache{cache: cache, ttl: ttl}, nil
}

func cacheKey(repoID, branchName string) string {
	return repoID + "/" + branchName
}

func (c *headCache) get(repoID, branchName, headCommitID string) (types.Commit, bool) {
	value, ok := c.cache.Get(cacheKey(repoID, branchName))
	if !ok {
		return types.Commit{}, false
	}
	entry, ok := value.(cachedHead)
	if !ok || entry.commitID != headCommitID {
		return types.Commit{}, false
	}
	return entry.commit, true
}

func (c *headCache) set(repoID, branchName string, commit types.Commit) {
	c.cache.SetWithTTL(cacheKey(repoID, branchName), cachedHead{commitID: commit.ID, commit: commit}, 1, c.ttl)
}

func (c *headCache) invalidate(repoID, branchName string) {
	c.cache.Del(cacheKey(repoID, branchName))
}
