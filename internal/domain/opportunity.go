package domain

import "time"

// OpportunityKind classifies why a multi-leg trade was generated.
type OpportunityKind string

const (
	OpportunityArbitrage    OpportunityKind = "arbitrage"
	OpportunityFarmingEntry OpportunityKind = "farming_entry"
	OpportunityRebalance    OpportunityKind = "rebalance"
)

// Side is the direction of a single leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the reverse direction, used when building hedge legs.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// LegSpec describes one side of a multi-venue trade. Size is always > 0
// and every leg carries a slippage bound.
type LegSpec struct {
	Venue       Venue
	Side        Side
	Instrument  string
	Size        float64
	LimitPrice  float64
	MaxSlippage float64
}

// MarketableLimit prices an aggressive limit order off a reference price:
// a buy crosses the spread upward by the slippage bound, a sell downward,
// so an immediate-or-cancel order fills without exceeding the bound.
func MarketableLimit(side Side, ref, slippage float64) float64 {
	if side == SideBuy {
		return ref * (1 + slippage)
	}
	return ref * (1 - slippage)
}

// LegStatus is the terminal state of a submitted leg.
type LegStatus string

const (
	LegFilled   LegStatus = "filled"
	LegPartial  LegStatus = "partial"
	LegRejected LegStatus = "rejected"
	LegTimeout  LegStatus = "timeout"
)

// LegResult is the outcome of submitting one LegSpec to a venue. Fee is
// the actual cost charged by the venue for the fill, in quote units.
type LegResult struct {
	Spec          LegSpec
	Status        LegStatus
	FilledSize    float64
	RealizedPrice float64
	Fee           float64
	TxRef         string // venue order ID or transaction hash
	Err           string
}

// Filled reports whether the leg left any exposure behind (full or
// partial fill).
func (r LegResult) Filled() bool {
	return r.FilledSize > 0 && (r.Status == LegFilled || r.Status == LegPartial)
}

// Opportunity is a candidate multi-leg trade derived from a price snapshot.
// It is advisory: it encodes the state at detection time and may be stale
// by the time execution begins.
type Opportunity struct {
	ID             string
	Kind           OpportunityKind
	Strategy       string
	Instrument     string
	Legs           []LegSpec
	ExpectedProfit float64
	MaxSize        float64
	DetectedAt     time.Time
}

// TradeState is the coordinator's per-trade state machine.
type TradeState string

const (
	TradePending     TradeState = "pending"
	TradeAllFilled   TradeState = "all_filled"
	TradePartial     TradeState = "partial"
	TradeHedging     TradeState = "hedging"
	TradeHedged      TradeState = "hedged"
	TradeHedgeFailed TradeState = "hedge_failed"
)

// TradeOutcome records the full result of executing one Opportunity,
// including any hedge legs issued after a partial failure.
type TradeOutcome struct {
	ID             string
	OpportunityID  string
	Kind           OpportunityKind
	Strategy       string
	Instrument     string
	State          TradeState
	Legs           []LegResult
	HedgeLegs      []LegResult
	RealizedProfit float64
	StartedAt      time.Time
	CompletedAt    time.Time
}
