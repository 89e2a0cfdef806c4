package domain

import "errors"

var (
	// ErrFeedUnavailable marks a transient feed failure; pollers log it
	// and keep looping.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrNoQuote means a venue has published no data yet for a symbol.
	ErrNoQuote = errors.New("no quote")
	// ErrStaleQuote means a venue's data is too old to trade on.
	ErrStaleQuote = errors.New("stale quote")
	// ErrLegRejected means a venue declined an order leg.
	ErrLegRejected = errors.New("leg rejected")
	// ErrLegTimeout means a leg did not resolve within its deadline.
	ErrLegTimeout = errors.New("leg timed out")
	// ErrHedgeFailed means a compensating order could not be filled;
	// the affected instrument must be halted.
	ErrHedgeFailed = errors.New("hedge failed")
	// ErrInstrumentHalted means new opportunities for the instrument are
	// suspended after a hedge failure.
	ErrInstrumentHalted = errors.New("instrument halted")
	// ErrTradeInFlight means another multi-leg trade for the same
	// (strategy, instrument) has not resolved yet.
	ErrTradeInFlight = errors.New("trade already in flight")
	// ErrLedgerInconsistent marks a failed defensive check in the position
	// ledger. It is fatal for the whole process.
	ErrLedgerInconsistent = errors.New("ledger inconsistent")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
