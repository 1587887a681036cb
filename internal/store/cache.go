package store

import (
	"sync"
	"time"

	"github.com/amats/tg-redmine/internal/model"
)

// Cache TTLs. The authoritative data lives in sqlite; the caches are
// side lookup tables invalidated on every mutating operation, so a
// reader can observe a stale answer for at most the TTL.
const (
	userCacheTTL    = 10 * time.Minute
	messageCacheTTL = 30 * time.Minute
)

type userCacheEntry struct {
	user    model.User
	expires time.Time
}

// userCache fronts UserByLogin lookups.
type userCache struct {
	mu      sync.Mutex
	entries map[string]userCacheEntry
}

func newUserCache() *userCache {
	return &userCache{entries: make(map[string]userCacheEntry)}
}

func (c *userCache) get(login string) (model.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[login]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, login)
		return model.User{}, false
	}
	return e.user, true
}

func (c *userCache) set(u model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[u.Login] = userCacheEntry{user: u, expires: time.Now().Add(userCacheTTL)}
}

func (c *userCache) invalidate(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, login)
}

type messageCacheEntry struct {
	records []model.MessageRecord
	expires time.Time
}

// messageCache fronts MessagesByIssue lookups, keyed by issue id.
type messageCache struct {
	mu      sync.Mutex
	entries map[int64]messageCacheEntry
}

func newMessageCache() *messageCache {
	return &messageCache{entries: make(map[int64]messageCacheEntry)}
}

func (c *messageCache) get(issueID int64) ([]model.MessageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[issueID]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, issueID)
		return nil, false
	}
	return e.records, true
}

func (c *messageCache) set(issueID int64, records []model.MessageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[issueID] = messageCacheEntry{records: records, expires: time.Now().Add(messageCacheTTL)}
}

func (c *messageCache) invalidate(issueID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, issueID)
}
