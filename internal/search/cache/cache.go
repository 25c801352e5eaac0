// Package cache keeps recent result bundles per query and collapses
// concurrent pipeline runs for the same query into one.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alex-user-go/fares/internal/search/types"
)

const sweepInterval = time.Minute

// Cache holds bundles for ttl after they are produced. While a bundle is
// being produced for a key, later callers for that key wait for it instead
// of starting their own run.
type Cache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry
	calls   map[string]*call

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	bundle  *types.ResultBundle
	expires time.Time
}

// call is one running fetch. bundle and err are set before done closes.
type call struct {
	done   chan struct{}
	bundle *types.ResultBundle
	err    error
}

// New returns a cache whose entries live for ttl. Expired entries are
// swept once a minute until Close.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		calls:   make(map[string]*call),
		stop:    make(chan struct{}),
	}
	go c.sweepEvery(sweepInterval)
	return c
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Key returns the cache key for a query.
func (c *Cache) Key(q types.Query) string {
	return q.Key()
}

// GetOrFetch returns the bundle stored under key, or runs fetch and shares
// its outcome with every caller that arrives meanwhile. The boolean is true
// only when the bundle came from storage.
//
// Only flight-bearing bundles are stored; an empty one reaches the waiters
// and the next request goes back to the sources.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func() (*types.ResultBundle, error)) (*types.ResultBundle, bool, error) {
	c.mu.Lock()
	if b, ok := c.lookup(key, time.Now()); ok {
		c.mu.Unlock()
		return b, true, nil
	}
	if running, ok := c.calls[key]; ok {
		c.mu.Unlock()
		select {
		case <-running.done:
			return running.bundle, false, running.err
		case <-ctx.Done():
			return nil, false, context.Cause(ctx)
		}
	}
	own := &call{done: make(chan struct{})}
	c.calls[key] = own
	c.mu.Unlock()

	own.bundle, own.err = fetch()

	c.mu.Lock()
	if own.err == nil && own.bundle != nil && own.bundle.Outcome() != types.OutcomeEmpty {
		c.put(key, own.bundle, time.Now().Add(c.ttl))
	}
	delete(c.calls, key)
	c.mu.Unlock()
	close(own.done)

	return own.bundle, false, own.err
}

// Invalidate drops key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every stored bundle. Running fetches are unaffected.
func (c *Cache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// lookup and put expect c.mu to be held.
func (c *Cache) lookup(key string, now time.Time) (*types.ResultBundle, bool) {
	e, ok := c.entries[key]
	if !ok || !now.Before(e.expires) {
		return nil, false
	}
	return e.bundle, true
}

func (c *Cache) put(key string, b *types.ResultBundle, expires time.Time) {
	c.entries[key] = entry{bundle: b, expires: expires}
}

// sweep removes entries expired at now and reports how many went.
func (c *Cache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *Cache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.sweep(now)
		case <-c.stop:
			return
		}
	}
}
