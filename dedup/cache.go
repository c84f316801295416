// Package dedup provides a bounded, time-windowed record of already
// processed payment identifiers. It is process-local and best-effort:
// the downstream sink tolerates the occasional duplicate.
package dedup

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is how long a payment id is treated as already handled.
	DefaultWindow = 10 * time.Minute

	maxEntries = 100
	trimTarget = 50
)

// Cache tracks recently processed payment ids with insertion-order
// eviction once the map exceeds its capacity.
type Cache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
	order   []string

	now func() time.Time
}

// New creates a Cache with the given dedup window. A non-positive
// window falls back to DefaultWindow.
func New(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{
		window:  window,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// ShouldProcess reports whether the id has not been processed within
// the dedup window. Expired and absent entries both return true.
func (c *Cache) ShouldProcess(paymentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen, ok := c.entries[paymentID]
	if !ok {
		return true
	}
	return c.now().Sub(seen) >= c.window
}

// MarkProcessed records the current timestamp for the id, refreshing
// its position in the eviction order.
func (c *Cache) MarkProcessed(paymentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[paymentID]; ok {
		c.removeFromOrder(paymentID)
	}
	c.entries[paymentID] = c.now()
	c.order = append(c.order, paymentID)

	if len(c.entries) > maxEntries {
		c.evict()
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evict drops the oldest entries until trimTarget remain. Caller holds the lock.
func (c *Cache) evict() {
	excess := len(c.entries) - trimTarget
	for _, id := range c.order[:excess] {
		delete(c.entries, id)
	}
	c.order = append([]string(nil), c.order[excess:]...)
}

func (c *Cache) removeFromOrder(paymentID string) {
	for i, id := range c.order {
		if id == paymentID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
