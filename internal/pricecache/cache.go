// Package pricecache implements the in-process last-value store for venue
// quotes. It is the only structure in the core with many concurrent
// writers and readers; each (venue, symbol) key has exactly one writer in
// practice (its feed poller).
package pricecache

import (
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// VenueQuote is a quote together with the venue's staleness flag. A stale
// venue is excluded from detection until its feed recovers.
type VenueQuote struct {
	domain.Quote
	Stale bool
}

// Cache stores the latest quote per (venue, symbol) with last-writer-wins
// semantics by timestamp. A missing venue is represented as absence in the
// snapshot, never as a zero-valued quote.
type Cache struct {
	mu    sync.RWMutex
	books map[string]map[domain.Venue]*VenueQuote
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		books: make(map[string]map[domain.Venue]*VenueQuote),
	}
}

// Update applies a quote if it is newer than the stored one for the same
// (venue, symbol). Out-of-order arrivals are discarded and Update returns
// false. A successful update clears the venue's stale flag.
func (c *Cache) Update(q domain.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	venues, ok := c.books[q.Symbol]
	if !ok {
		venues = make(map[domain.Venue]*VenueQuote)
		c.books[q.Symbol] = venues
	}

	if cur, ok := venues[q.Venue]; ok && !q.Timestamp.After(cur.Timestamp) {
		return false
	}
	venues[q.Venue] = &VenueQuote{Quote: q}
	return true
}

// MarkStale flags a venue's quote for a symbol as untrustworthy. It is a
// no-op when the venue has never published.
func (c *Cache) MarkStale(venue domain.Venue, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if vq, ok := c.books[symbol][venue]; ok {
		vq.Stale = true
	}
}

// Quote returns the latest quote for one (venue, symbol) key.
func (c *Cache) Quote(venue domain.Venue, symbol string) (VenueQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vq, ok := c.books[symbol][venue]
	if !ok {
		return VenueQuote{}, false
	}
	return *vq, true
}

// Snapshot returns a consistent point-in-time copy of all venue quotes for
// a symbol. The returned map is owned by the caller.
func (c *Cache) Snapshot(symbol string) map[domain.Venue]VenueQuote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[domain.Venue]VenueQuote, len(c.books[symbol]))
	for v, vq := range c.books[symbol] {
		out[v] = *vq
	}
	return out
}

// Symbols returns all symbols that have at least one quote.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.books))
	for s := range c.books {
		out = append(out, s)
	}
	return out
}
