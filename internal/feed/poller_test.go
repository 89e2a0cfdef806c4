package feed

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

// scriptedSource returns its script entries in order, repeating the last.
type scriptedSource struct {
	mu     sync.Mutex
	script []func() (domain.Quote, error)
	calls  int
}

func (s *scriptedSource) Poll(_ context.Context, _ domain.Venue, _ string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i]()
}

func okQuote(ts time.Time) func() (domain.Quote, error) {
	return func() (domain.Quote, error) {
		return domain.Quote{Venue: "dex", Symbol: "SOL/USDT", Bid: 100.4, Ask: 100.6, Timestamp: ts}, nil
	}
}

func failPoll() (domain.Quote, error) {
	return domain.Quote{}, domain.ErrFeedUnavailable
}

func runPoller(t *testing.T, p *Poller, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_ = p.Run(ctx)
}

func TestPoller_WritesQuotes(t *testing.T) {
	cache := pricecache.New()
	src := &scriptedSource{script: []func() (domain.Quote, error){okQuote(time.Now())}}
	p := NewPoller(src, cache, nil, "dex", "SOL/USDT", time.Millisecond, 3, slog.Default())

	runPoller(t, p, 20*time.Millisecond)

	vq, ok := cache.Quote("dex", "SOL/USDT")
	require.True(t, ok)
	assert.Equal(t, 100.4, vq.Bid)
	assert.False(t, vq.Stale)
}

// Transient failures must not terminate the loop, and the venue goes
// stale only after the configured number of consecutive failures.
func TestPoller_MarksStaleAfterConsecutiveFailures(t *testing.T) {
	cache := pricecache.New()
	now := time.Now()
	src := &scriptedSource{script: []func() (domain.Quote, error){
		okQuote(now),
		failPoll,
		failPoll,
		failPoll,
		okQuote(now.Add(time.Second)),
	}}
	p := NewPoller(src, cache, nil, "dex", "SOL/USDT", time.Millisecond, 3, slog.Default())

	runPoller(t, p, 50*time.Millisecond)

	vq, ok := cache.Quote("dex", "SOL/USDT")
	require.True(t, ok)
	assert.False(t, vq.Stale, "stale flag cleared once the feed recovers")
	assert.GreaterOrEqual(t, src.calls, 5, "poller survived the failures")
}

func TestPoller_StaleVisibleWhileFeedDown(t *testing.T) {
	cache := pricecache.New()
	src := &scriptedSource{script: []func() (domain.Quote, error){
		okQuote(time.Now()),
		failPoll,
	}}
	p := NewPoller(src, cache, nil, "dex", "SOL/USDT", time.Millisecond, 2, slog.Default())

	runPoller(t, p, 50*time.Millisecond)

	vq, ok := cache.Quote("dex", "SOL/USDT")
	require.True(t, ok)
	assert.True(t, vq.Stale)
}

func TestPoller_SingleFailureNotStale(t *testing.T) {
	cache := pricecache.New()
	now := time.Now()
	src := &scriptedSource{script: []func() (domain.Quote, error){
		okQuote(now),
		failPoll,
		okQuote(now.Add(time.Second)),
	}}
	p := NewPoller(src, cache, nil, "dex", "SOL/USDT", time.Millisecond, 3, slog.Default())

	runPoller(t, p, 50*time.Millisecond)

	vq, ok := cache.Quote("dex", "SOL/USDT")
	require.True(t, ok)
	assert.False(t, vq.Stale)
}
