package application

import (
	"sync"
	"time"
)

// memberCache keeps recently read group member lists so that bursts of
// submissions for one group do not each hit the membership directory.
type memberCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]memberCacheEntry
}

type memberCacheEntry struct {
	members   []GroupMember
	expiresAt time.Time
}

func newMemberCache(ttl time.Duration, maxEntries int, now func() time.Time) *memberCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &memberCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]memberCacheEntry),
	}
}

func (c *memberCache) Get(groupID string) ([]GroupMember, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[groupID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, groupID)
		c.mu.Unlock()
		return nil, false
	}
	return cloneMembers(entry.members), true
}

func (c *memberCache) Store(groupID string, members []GroupMember) {
	if c == nil {
		return
	}
	cloned := cloneMembers(members)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if _, exists := c.entries[groupID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[groupID] = memberCacheEntry{members: cloned, expiresAt: expiry}
}

func (c *memberCache) Invalidate(groupID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, groupID)
	c.mu.Unlock()
}

func (c *memberCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *memberCache) evictOneLocked() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for key, entry := range c.entries {
		if !found || entry.expiresAt.Before(oldest) {
			victim, oldest, found = key, entry.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

func cloneMembers(members []GroupMember) []GroupMember {
	if len(members) == 0 {
		return nil
	}
	out := make([]GroupMember, len(members))
	copy(out, members)
	return out
}
