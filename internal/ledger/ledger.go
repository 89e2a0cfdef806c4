// Package ledger tracks net exposure per (venue, instrument) resulting
// from settled trade legs. All mutations for one instrument are serialized;
// trades on different instruments proceed fully in parallel.
package ledger

import (
	"fmt"
	"math"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Ledger is the position book. Inconsistency errors returned from Apply
// are fatal for the whole process: ledger correctness is the system's core
// safety property.
type Ledger struct {
	mu    sync.Mutex
	books map[string]*instrumentBook
}

type instrumentBook struct {
	mu        sync.Mutex
	positions map[domain.Venue]*domain.Position
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{books: make(map[string]*instrumentBook)}
}

func (l *Ledger) book(instrument string) *instrumentBook {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[instrument]
	if !ok {
		b = &instrumentBook{positions: make(map[domain.Venue]*domain.Position)}
		l.books[instrument] = b
	}
	return b
}

// Apply updates the signed size and cost basis for the leg's (venue,
// instrument). Legs that left no fill behind are ignored.
func (l *Ledger) Apply(res domain.LegResult) error {
	if !res.Filled() {
		return nil
	}
	b := l.book(res.Spec.Instrument)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.apply(res)
}

// ApplyTrade applies all legs of one trade atomically with respect to
// other trades on the same instruments.
func (l *Ledger) ApplyTrade(results []domain.LegResult) error {
	byInstrument := make(map[string][]domain.LegResult)
	for _, res := range results {
		if res.Filled() {
			byInstrument[res.Spec.Instrument] = append(byInstrument[res.Spec.Instrument], res)
		}
	}
	for instrument, legs := range byInstrument {
		b := l.book(instrument)
		b.mu.Lock()
		for _, res := range legs {
			if err := b.apply(res); err != nil {
				b.mu.Unlock()
				return err
			}
		}
		b.mu.Unlock()
	}
	return nil
}

func (b *instrumentBook) apply(res domain.LegResult) error {
	if res.FilledSize <= 0 || math.IsNaN(res.FilledSize) || math.IsInf(res.FilledSize, 0) {
		return fmt.Errorf("ledger: filled size %v for %s on %s: %w",
			res.FilledSize, res.Spec.Instrument, res.Spec.Venue, domain.ErrLedgerInconsistent)
	}
	if res.RealizedPrice <= 0 || math.IsNaN(res.RealizedPrice) || math.IsInf(res.RealizedPrice, 0) {
		return fmt.Errorf("ledger: realized price %v for %s on %s: %w",
			res.RealizedPrice, res.Spec.Instrument, res.Spec.Venue, domain.ErrLedgerInconsistent)
	}

	pos, ok := b.positions[res.Spec.Venue]
	if !ok {
		pos = &domain.Position{Venue: res.Spec.Venue, Instrument: res.Spec.Instrument}
		b.positions[res.Spec.Venue] = pos
	}

	delta := res.FilledSize
	if res.Spec.Side == domain.SideSell {
		delta = -delta
	}
	next := pos.SignedSize + delta

	switch {
	case pos.SignedSize == 0 || sameSign(pos.SignedSize, next) && math.Abs(next) > math.Abs(pos.SignedSize):
		// Opening or increasing: volume-weighted cost basis.
		total := math.Abs(pos.SignedSize) + res.FilledSize
		pos.CostBasis = (pos.CostBasis*math.Abs(pos.SignedSize) + res.RealizedPrice*res.FilledSize) / total
	case next == 0:
		pos.CostBasis = 0
	case !sameSign(pos.SignedSize, next):
		// Flipped through zero: basis restarts at the fill price.
		pos.CostBasis = res.RealizedPrice
	}
	pos.SignedSize = next

	if math.IsNaN(pos.SignedSize) || math.IsNaN(pos.CostBasis) || pos.CostBasis < 0 {
		return fmt.Errorf("ledger: position %s/%s size=%v basis=%v: %w",
			pos.Venue, pos.Instrument, pos.SignedSize, pos.CostBasis, domain.ErrLedgerInconsistent)
	}
	return nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// NetExposure returns the signed size held per venue for an instrument.
func (l *Ledger) NetExposure(instrument string) map[domain.Venue]float64 {
	b := l.book(instrument)
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[domain.Venue]float64, len(b.positions))
	for v, p := range b.positions {
		out[v] = p.SignedSize
	}
	return out
}

// ExposureDelta returns the net signed size across all venues for an
// instrument: the amount by which the long side exceeds the hedge side,
// in base units. Zero for a perfectly hedged pair.
func (l *Ledger) ExposureDelta(instrument string) float64 {
	b := l.book(instrument)
	b.mu.Lock()
	defer b.mu.Unlock()

	var delta float64
	for _, p := range b.positions {
		delta += p.SignedSize
	}
	return delta
}

// Positions returns copies of all positions for an instrument.
func (l *Ledger) Positions(instrument string) []domain.Position {
	b := l.book(instrument)
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// Instruments returns every instrument with at least one recorded leg.
func (l *Ledger) Instruments() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.books))
	for name := range l.books {
		out = append(out, name)
	}
	return out
}
