package domain

import (
	"context"
	"time"
)

// FeedSource pulls the latest quote for a symbol from one venue. Transient
// connectivity loss is reported as an error wrapping ErrFeedUnavailable.
type FeedSource interface {
	Poll(ctx context.Context, venue Venue, symbol string) (Quote, error)
}

// OrderVenue submits a single leg to a venue. A declined order is reported
// through the LegResult status (and optionally an error wrapping
// ErrLegRejected); a context deadline expiry is classified as LegTimeout
// by the caller.
type OrderVenue interface {
	Submit(ctx context.Context, spec LegSpec) (LegResult, error)
}

// CapitalView reports how much of an instrument can currently be traded at
// a venue, in base units.
type CapitalView interface {
	Available(ctx context.Context, venue Venue, instrument string) (float64, error)
}

// LiquidityView estimates how much size a venue can absorb near the top of
// book without blowing through the slippage bound.
type LiquidityView interface {
	Depth(ctx context.Context, venue Venue, instrument string) (float64, error)
}

// FeeModel estimates the total per-unit cost of a round trip: venue fees
// on both sides, network fees, and expected slippage. Implementations are
// pluggable per venue pair.
type FeeModel interface {
	Estimate(buyVenue, sellVenue Venue, buyPrice, sellPrice float64) float64
}

// EventSink receives detection, trade, hedge, and rebalance events. It is
// fire-and-forget: publish failures are logged by callers and never block
// or abort the core.
type EventSink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// TradeExecutor runs a multi-leg opportunity to resolution. Both the
// strategy loops and the rebalance planner submit through this interface
// so partial-failure handling is uniform.
type TradeExecutor interface {
	Execute(ctx context.Context, opp Opportunity) (TradeOutcome, error)
}

// TradeOutcomeStore persists settled trade outcomes.
type TradeOutcomeStore interface {
	Create(ctx context.Context, outcome TradeOutcome) error
	ListBefore(ctx context.Context, before time.Time) ([]TradeOutcome, error)
}

// FarmPair is an on-chain liquidity pool paired against a USD stable.
type FarmPair struct {
	Pool  string
	Token string
	Quote string
}

// FarmSource enumerates farmable pools and their current yield, and
// reports whether the low-latency venue lists a perpetual for a token
// (required for the delta-neutral hedge).
type FarmSource interface {
	Pairs(ctx context.Context) ([]FarmPair, error)
	APY(ctx context.Context, pair FarmPair) (float64, error)
	HasPerp(ctx context.Context, token string) (bool, error)
}
