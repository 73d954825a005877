package application

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// deviceCache remembers recently verified device keys so that each request
// does not rerun argon2 against every enabled device. Keys are stored by
// digest only.
type deviceCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]deviceCacheEntry
}

type deviceCacheEntry struct {
	device    Device
	expiresAt time.Time
}

func newDeviceCache(ttl time.Duration, maxEntries int, now func() time.Time) *deviceCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if now == nil {
		now = time.Now
	}
	return &deviceCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]deviceCacheEntry),
	}
}

func (c *deviceCache) Get(rawKey string) (Device, bool) {
	if c == nil {
		return Device{}, false
	}
	key := deviceCacheKey(rawKey)
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Device{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Device{}, false
	}
	return entry.device, true
}

func (c *deviceCache) Store(rawKey string, device Device) {
	if c == nil {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[deviceCacheKey(rawKey)] = deviceCacheEntry{device: device, expiresAt: expiry}
}

func (c *deviceCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]deviceCacheEntry)
	c.mu.Unlock()
}

func (c *deviceCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *deviceCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func deviceCacheKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
