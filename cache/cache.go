// Package cache holds recent scrape outcomes so repeated searches are
// served without re-driving a browser session.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/models"
)

// entry holds a cached outcome with its creation timestamp.
type entry struct {
	outcome   models.ScrapeOutcome
	createdAt time.Time
}

// Cache is an in-memory TTL cache for scrape outcomes, keyed by search
// criteria. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	maxAge     time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Cache sized and aged per cfg. A background goroutine evicts
// expired entries every 5 minutes until Close is called.
func New(cfg config.CacheConfig) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}

	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: cfg.MaxEntries,
		maxAge:     cfg.MaxAge,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from every criteria field that changes what a
// search returns.
func Key(c models.SearchCriteria) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d",
		c.Origin, c.Destination, c.DepartureDate, c.ReturnDate, c.TripType, c.MaxResults)
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached outcome if it exists and is younger than the
// configured max age. The outcome is returned by value so callers can stamp
// their own cache status without touching the stored copy.
func (c *Cache) Get(key string) (models.ScrapeOutcome, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || time.Since(e.createdAt) > c.maxAge {
		return models.ScrapeOutcome{}, false
	}
	return e.outcome, true
}

// Set stores an outcome. If the cache is at capacity, a random entry is
// evicted to make room. The stored copy carries no cache status.
func (c *Cache) Set(key string, outcome models.ScrapeOutcome) {
	outcome.CacheStatus = ""

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		outcome:   outcome,
		createdAt: time.Now(),
	}
}

// Len reports the number of cached outcomes, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup loop. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// cleanupLoop evicts entries older than the max age every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.maxAge)
			c.mu.Lock()
			for k, e := range c.store {
				if e.createdAt.Before(cutoff) {
					delete(c.store, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
