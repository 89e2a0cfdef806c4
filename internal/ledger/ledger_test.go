package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func filledLeg(venue domain.Venue, side domain.Side, instrument string, size, price float64) domain.LegResult {
	return domain.LegResult{
		Spec:          domain.LegSpec{Venue: venue, Side: side, Instrument: instrument, Size: size, MaxSlippage: 0.005},
		Status:        domain.LegFilled,
		FilledSize:    size,
		RealizedPrice: price,
	}
}

func TestLedger_ApplyBuildsSignedExposure(t *testing.T) {
	l := New()

	require.NoError(t, l.Apply(filledLeg("cex", domain.SideBuy, "SOL", 10, 100)))
	require.NoError(t, l.Apply(filledLeg("dex", domain.SideSell, "SOL", 10, 100.5)))

	net := l.NetExposure("SOL")
	assert.Equal(t, 10.0, net["cex"])
	assert.Equal(t, -10.0, net["dex"])
	assert.InDelta(t, 0, l.ExposureDelta("SOL"), 1e-9)
}

func TestLedger_CostBasisWeightedOnIncrease(t *testing.T) {
	l := New()

	require.NoError(t, l.Apply(filledLeg("cex", domain.SideBuy, "SOL", 10, 100)))
	require.NoError(t, l.Apply(filledLeg("cex", domain.SideBuy, "SOL", 10, 110)))

	pos := l.Positions("SOL")
	require.Len(t, pos, 1)
	assert.InDelta(t, 105, pos[0].CostBasis, 1e-9)
	assert.Equal(t, 20.0, pos[0].SignedSize)
}

func TestLedger_CostBasisResetsOnFlatAndFlip(t *testing.T) {
	l := New()

	require.NoError(t, l.Apply(filledLeg("cex", domain.SideBuy, "SOL", 10, 100)))
	require.NoError(t, l.Apply(filledLeg("cex", domain.SideSell, "SOL", 10, 101)))
	pos := l.Positions("SOL")
	require.Len(t, pos, 1)
	assert.Equal(t, 0.0, pos[0].SignedSize)
	assert.Equal(t, 0.0, pos[0].CostBasis)

	require.NoError(t, l.Apply(filledLeg("cex", domain.SideSell, "SOL", 5, 102)))
	pos = l.Positions("SOL")
	assert.Equal(t, -5.0, pos[0].SignedSize)
	assert.Equal(t, 102.0, pos[0].CostBasis)
}

func TestLedger_IgnoresUnfilledLegs(t *testing.T) {
	l := New()

	res := domain.LegResult{
		Spec:   domain.LegSpec{Venue: "cex", Side: domain.SideBuy, Instrument: "SOL", Size: 10},
		Status: domain.LegRejected,
	}
	require.NoError(t, l.Apply(res))
	assert.Empty(t, l.NetExposure("SOL"))
}

func TestLedger_InconsistentFillIsFatal(t *testing.T) {
	l := New()

	bad := filledLeg("cex", domain.SideBuy, "SOL", 10, 100)
	bad.RealizedPrice = -1
	err := l.Apply(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerInconsistent)
}

func TestLedger_ApplyTradeAtomicPerInstrument(t *testing.T) {
	l := New()

	legs := []domain.LegResult{
		filledLeg("cex", domain.SideBuy, "SOL", 10, 100),
		filledLeg("dex", domain.SideSell, "SOL", 10, 100.5),
	}
	require.NoError(t, l.ApplyTrade(legs))
	assert.InDelta(t, 0, l.ExposureDelta("SOL"), 1e-9)
}

// Two concurrent trade streams on different instruments must not corrupt
// each other, and totals must come out exact.
func TestLedger_ConcurrentInstrumentsIndependent(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	for _, instrument := range []string{"SOL", "ETH"} {
		wg.Add(1)
		go func(instrument string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = l.ApplyTrade([]domain.LegResult{
					filledLeg("cex", domain.SideBuy, instrument, 1, 100),
					filledLeg("dex", domain.SideSell, instrument, 1, 100),
				})
			}
		}(instrument)
	}
	wg.Wait()

	for _, instrument := range []string{"SOL", "ETH"} {
		net := l.NetExposure(instrument)
		assert.Equal(t, 200.0, net["cex"], instrument)
		assert.Equal(t, -200.0, net["dex"], instrument)
	}
	assert.ElementsMatch(t, []string{"SOL", "ETH"}, l.Instruments())
}
