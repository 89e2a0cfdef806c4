package domain

// Position is the net exposure held at one venue for one instrument.
// SignedSize is positive for long exposure and negative for short; the
// cost basis is the volume-weighted average entry price of the open size.
type Position struct {
	Venue      Venue
	Instrument string
	SignedSize float64
	CostBasis  float64
}
