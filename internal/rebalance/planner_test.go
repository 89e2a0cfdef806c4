package rebalance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/ledger"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

func filledLeg(venue domain.Venue, side domain.Side, instrument string, size, price float64) domain.LegResult {
	return domain.LegResult{
		Spec:          domain.LegSpec{Venue: venue, Side: side, Instrument: instrument, Size: size},
		Status:        domain.LegFilled,
		FilledSize:    size,
		RealizedPrice: price,
	}
}

// newFixture builds a ledger holding a long spot position on "dex" and a
// short hedge on "cex", with the cex mark at 100.
func newFixture(t *testing.T, longSize, shortSize float64) (*ledger.Ledger, *pricecache.Cache) {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.Apply(filledLeg("dex", domain.SideBuy, "SOL", longSize, 100)))
	if shortSize > 0 {
		require.NoError(t, l.Apply(filledLeg("cex", domain.SideSell, "SOL", shortSize, 100)))
	}
	cache := pricecache.New()
	cache.Update(domain.Quote{Venue: "cex", Symbol: "SOL", Bid: 99.9, Ask: 100.1, Timestamp: time.Now()})
	return l, cache
}

func newPlanner(l *ledger.Ledger, cache *pricecache.Cache, threshold float64) *Planner {
	return New(l, cache, nil, Config{
		Threshold:     threshold,
		Interval:      time.Minute,
		HedgeVenue:    "cex",
		SlippageBound: 0.005,
	}, slog.Default())
}

// LP value 1000, short value 850, threshold 50: increase the short by
// 150 / price.
func TestPlanner_IncreaseShort(t *testing.T) {
	l, cache := newFixture(t, 10, 8.5)
	p := newPlanner(l, cache, 50)

	opps := p.Plan(context.Background())
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.OpportunityRebalance, opp.Kind)
	require.Len(t, opp.Legs, 1)
	leg := opp.Legs[0]
	assert.Equal(t, domain.Venue("cex"), leg.Venue)
	assert.Equal(t, domain.SideSell, leg.Side)
	assert.InDelta(t, 1.5, leg.Size, 1e-9, "150 of value at mark 100")
	assert.InDelta(t, 99.5, leg.LimitPrice, 1e-9, "sell priced through the mark")
}

func TestPlanner_ReduceShort(t *testing.T) {
	l, cache := newFixture(t, 8, 10)
	p := newPlanner(l, cache, 50)

	opps := p.Plan(context.Background())
	require.Len(t, opps, 1)
	leg := opps[0].Legs[0]
	assert.Equal(t, domain.SideBuy, leg.Side)
	assert.InDelta(t, 2.0, leg.Size, 1e-9)
	assert.InDelta(t, 100.5, leg.LimitPrice, 1e-9, "buy priced through the mark")
}

// A delta of exactly the threshold value must not fire; threshold + eps
// fires exactly once.
func TestPlanner_ThresholdBoundary(t *testing.T) {
	// delta = 0.5 units * 100 = 50 value, threshold 50: no trigger.
	l, cache := newFixture(t, 10, 9.5)
	p := newPlanner(l, cache, 50)
	assert.Empty(t, p.Plan(context.Background()))

	// One epsilon over: exactly one corrective opportunity.
	require.NoError(t, l.Apply(filledLeg("dex", domain.SideBuy, "SOL", 0.001, 100)))
	opps := p.Plan(context.Background())
	require.Len(t, opps, 1)
	assert.Equal(t, domain.SideSell, opps[0].Legs[0].Side)
}

func TestPlanner_BalancedPairQuiet(t *testing.T) {
	l, cache := newFixture(t, 10, 10)
	p := newPlanner(l, cache, 50)
	assert.Empty(t, p.Plan(context.Background()))
}

func TestPlanner_NoMarkSkips(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Apply(filledLeg("dex", domain.SideBuy, "SOL", 10, 100)))
	p := newPlanner(l, pricecache.New(), 50)

	assert.Empty(t, p.Plan(context.Background()), "no quote for instrument, nothing planned")
}

func TestPlanner_StaleMarkFallsBack(t *testing.T) {
	l, cache := newFixture(t, 10, 8.5)
	cache.MarkStale("cex", "SOL")
	cache.Update(domain.Quote{Venue: "dex", Symbol: "SOL", Bid: 99.5, Ask: 100.5, Timestamp: time.Now()})

	p := newPlanner(l, cache, 50)
	opps := p.Plan(context.Background())
	require.Len(t, opps, 1, "falls back to a fresh venue's mark")
}

type recordingExecutor struct {
	executed []domain.Opportunity
}

func (r *recordingExecutor) Execute(_ context.Context, opp domain.Opportunity) (domain.TradeOutcome, error) {
	r.executed = append(r.executed, opp)
	return domain.TradeOutcome{State: domain.TradeAllFilled}, nil
}

func TestPlanner_RunExecutesCorrections(t *testing.T) {
	l, cache := newFixture(t, 10, 8.5)
	p := New(l, cache, nil, Config{
		Threshold:     50,
		Interval:      5 * time.Millisecond,
		HedgeVenue:    "cex",
		SlippageBound: 0.005,
	}, slog.Default())

	exec := &recordingExecutor{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, exec)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, exec.executed)
	assert.Equal(t, domain.OpportunityRebalance, exec.executed[0].Kind)
}
