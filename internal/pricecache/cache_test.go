package pricecache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func quoteAt(venue domain.Venue, symbol string, bid, ask float64, ts time.Time) domain.Quote {
	return domain.Quote{Venue: venue, Symbol: symbol, Bid: bid, Ask: ask, Timestamp: ts}
}

func TestCache_UpdateAndSnapshot(t *testing.T) {
	c := New()
	now := time.Now()

	require.True(t, c.Update(quoteAt("cex", "SOL/USDT", 99.9, 100.0, now)))
	require.True(t, c.Update(quoteAt("dex", "SOL/USDT", 100.4, 100.6, now)))

	snap := c.Snapshot("SOL/USDT")
	require.Len(t, snap, 2)
	assert.Equal(t, 100.0, snap["cex"].Ask)
	assert.Equal(t, 100.4, snap["dex"].Bid)
	assert.False(t, snap["cex"].Stale)
}

func TestCache_MissingVenueIsAbsent(t *testing.T) {
	c := New()
	c.Update(quoteAt("cex", "SOL/USDT", 99.9, 100.0, time.Now()))

	snap := c.Snapshot("SOL/USDT")
	_, ok := snap["dex"]
	assert.False(t, ok, "venue with no data must be absent, not zero")

	_, ok = c.Quote("dex", "SOL/USDT")
	assert.False(t, ok)
}

func TestCache_OutOfOrderDiscarded(t *testing.T) {
	c := New()
	now := time.Now()

	require.True(t, c.Update(quoteAt("cex", "SOL/USDT", 100.0, 100.1, now)))
	assert.False(t, c.Update(quoteAt("cex", "SOL/USDT", 90.0, 90.1, now.Add(-time.Second))))
	assert.False(t, c.Update(quoteAt("cex", "SOL/USDT", 90.0, 90.1, now)), "equal timestamp must not supersede")

	vq, ok := c.Quote("cex", "SOL/USDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, vq.Bid)
	assert.Equal(t, now, vq.Timestamp)
}

func TestCache_MarkStaleClearedByUpdate(t *testing.T) {
	c := New()
	now := time.Now()

	c.Update(quoteAt("dex", "SOL/USDT", 100.0, 100.2, now))
	c.MarkStale("dex", "SOL/USDT")

	vq, ok := c.Quote("dex", "SOL/USDT")
	require.True(t, ok)
	assert.True(t, vq.Stale)

	c.Update(quoteAt("dex", "SOL/USDT", 100.1, 100.3, now.Add(time.Second)))
	vq, _ = c.Quote("dex", "SOL/USDT")
	assert.False(t, vq.Stale)
}

func TestCache_MarkStaleUnknownVenueNoop(t *testing.T) {
	c := New()
	c.MarkStale("dex", "SOL/USDT")
	_, ok := c.Quote("dex", "SOL/USDT")
	assert.False(t, ok)
}

// Timestamps observed by readers must never go backwards for a key, no
// matter how writes interleave.
func TestCache_MonotonicUnderConcurrency(t *testing.T) {
	c := New()
	base := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Update(quoteAt("cex", "SOL/USDT", 100, 100.1, base.Add(time.Duration(w*500+i)*time.Microsecond)))
			}
		}(w)
	}

	var last time.Time
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			vq, ok := c.Quote("cex", "SOL/USDT")
			if !ok {
				continue
			}
			if vq.Timestamp.Before(last) {
				t.Errorf("timestamp went backwards: %v after %v", vq.Timestamp, last)
				return
			}
			last = vq.Timestamp
		}
	}()

	wg.Wait()
	<-done
}

func TestCache_Symbols(t *testing.T) {
	c := New()
	c.Update(quoteAt("cex", "SOL/USDT", 100, 100.1, time.Now()))
	c.Update(quoteAt("cex", "ETH/USDT", 3000, 3001, time.Now()))

	assert.ElementsMatch(t, []string{"SOL/USDT", "ETH/USDT"}, c.Symbols())
}
