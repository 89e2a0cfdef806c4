// Package feed moves venue quotes into the price cache: a pull-based
// Poller per (venue, symbol), and a push-based websocket bridge for venues
// that stream their book.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

// Poller pulls quotes for one (venue, symbol) at a venue-specific interval
// reflecting that venue's update granularity. Transient fetch failures are
// logged and retried; after StaleAfter consecutive failures the venue is
// marked stale in the cache so detection excludes it.
type Poller struct {
	src        domain.FeedSource
	cache      *pricecache.Cache
	bus        domain.EventSink
	venue      domain.Venue
	symbol     string
	interval   time.Duration
	staleAfter int
	logger     *slog.Logger
}

// NewPoller creates a Poller. bus may be nil.
func NewPoller(src domain.FeedSource, cache *pricecache.Cache, bus domain.EventSink, venue domain.Venue, symbol string, interval time.Duration, staleAfter int, logger *slog.Logger) *Poller {
	if staleAfter <= 0 {
		staleAfter = 3
	}
	return &Poller{
		src:        src,
		cache:      cache,
		bus:        bus,
		venue:      venue,
		symbol:     symbol,
		interval:   interval,
		staleAfter: staleAfter,
		logger: logger.With(
			slog.String("component", "feed_poller"),
			slog.String("venue", string(venue)),
			slog.String("symbol", symbol),
		),
	}
}

// Run polls until ctx is cancelled. It never terminates on a fetch error.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("feed poller started", slog.Duration("interval", p.interval))
	defer p.logger.Info("feed poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		p.tick(ctx, &failures)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context, failures *int) {
	quote, err := p.src.Poll(ctx, p.venue, p.symbol)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		*failures++
		p.logger.Warn("poll failed",
			slog.Int("consecutive_failures", *failures),
			slog.String("error", err.Error()),
		)
		if *failures == p.staleAfter {
			p.cache.MarkStale(p.venue, p.symbol)
			p.logger.Warn("venue marked stale")
			p.publishStale(ctx, err)
		}
		return
	}

	*failures = 0
	if !p.cache.Update(quote) {
		p.logger.Debug("out-of-order quote discarded",
			slog.Time("ts", quote.Timestamp),
		)
	}
}

func (p *Poller) publishStale(ctx context.Context, cause error) {
	if p.bus == nil {
		return
	}
	reason := cause.Error()
	if errors.Is(cause, domain.ErrFeedUnavailable) {
		reason = "feed unavailable"
	}
	evt, _ := json.Marshal(map[string]any{
		"event":  "venue_stale",
		"venue":  string(p.venue),
		"symbol": p.symbol,
		"reason": reason,
	})
	if err := p.bus.Publish(ctx, "feeds", evt); err != nil {
		p.logger.Warn("publish stale event failed", slog.String("error", err.Error()))
	}
}
