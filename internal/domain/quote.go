// Package domain holds the core types and port interfaces shared by every
// layer of the coordinator. It has no dependencies on concrete venues,
// caches, or stores.
package domain

import "time"

// Venue identifies a trading venue, e.g. "binance" or "raydium".
type Venue string

// Quote is one venue's latest bid/ask for a symbol. Quotes are immutable
// once created; a newer timestamp always supersedes an older one for the
// same (venue, symbol).
type Quote struct {
	Venue     Venue
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Mid returns the midpoint between bid and ask, or zero when either side
// is missing.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}
