package detector

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pricecache"
)

type fixedCapital map[domain.Venue]float64

func (f fixedCapital) Available(_ context.Context, venue domain.Venue, _ string) (float64, error) {
	return f[venue], nil
}

type fixedDepth map[domain.Venue]float64

func (f fixedDepth) Depth(_ context.Context, venue domain.Venue, _ string) (float64, error) {
	return f[venue], nil
}

type flatFees float64

func (f flatFees) Estimate(_, _ domain.Venue, _, _ float64) float64 { return float64(f) }

func newTestDetector(t *testing.T, cache *pricecache.Cache, capital fixedCapital, depth fixedDepth, fees domain.FeeModel) *Detector {
	t.Helper()
	return New(cache, capital, depth, fees, nil, Config{
		MaxTradeSize:  50,
		SlippageBound: 0.005,
	}, slog.Default())
}

func seed(cache *pricecache.Cache, venue domain.Venue, bid, ask float64) {
	cache.Update(domain.Quote{
		Venue: venue, Symbol: "SOL/USDT", Bid: bid, Ask: ask, Timestamp: time.Now(),
	})
}

// CEX ask 100.00, DEX bid 100.50, flat fees 0.10: buy CEX / sell DEX with
// 0.40 per-unit edge, sized to the smaller venue's capital.
func TestDetector_BuyCEXSellDEX(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)
	seed(cache, "dex", 100.50, 100.60)

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 10, "dex": 25},
		fixedDepth{"cex": 100, "dex": 100},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)

	require.Len(t, opp.Legs, 2)
	buy, sell := opp.Legs[0], opp.Legs[1]
	assert.Equal(t, domain.Venue("cex"), buy.Venue)
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, domain.Venue("dex"), sell.Venue)
	assert.Equal(t, domain.SideSell, sell.Side)

	assert.Equal(t, 10.0, opp.MaxSize, "size bounded by smaller venue capital")
	assert.InDelta(t, 0.40*10, opp.ExpectedProfit, 1e-9)
	assert.Greater(t, buy.MaxSlippage, 0.0)
	assert.Greater(t, sell.MaxSlippage, 0.0)
}

func TestDetector_ReverseDirection(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 100.50, 100.60)
	seed(cache, "dex", 100.00, 100.05)

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 20, "dex": 20},
		fixedDepth{"cex": 100, "dex": 100},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.Venue("dex"), opp.Legs[0].Venue)
	assert.Equal(t, domain.SideBuy, opp.Legs[0].Side)
	assert.Equal(t, domain.Venue("cex"), opp.Legs[1].Venue)
}

// No opportunity may ever be emitted with profit <= 0.
func TestDetector_ProfitGate(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)
	seed(cache, "dex", 100.08, 100.18)

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 20, "dex": 20},
		fixedDepth{"cex": 100, "dex": 100},
		flatFees(0.10), // spread 0.08 < fees
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetector_SizeBoundedByDepthAndCap(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)
	seed(cache, "dex", 100.50, 100.60)

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 1000, "dex": 1000},
		fixedDepth{"cex": 30, "dex": 80},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, 30.0, opp.MaxSize, "bounded by shallowest depth")

	for _, leg := range opp.Legs {
		assert.LessOrEqual(t, leg.Size, 50.0, "never above configured cap")
	}
}

func TestDetector_ZeroCapitalNoOpportunity(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)
	seed(cache, "dex", 100.50, 100.60)

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 0, "dex": 25},
		fixedDepth{"cex": 100, "dex": 100},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetector_StaleVenueExcluded(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)
	seed(cache, "dex", 100.50, 100.60)
	cache.MarkStale("dex", "SOL/USDT")

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 20, "dex": 20},
		fixedDepth{"cex": 100, "dex": 100},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp, "frozen data must not be traded on")
}

func TestDetector_NoDataNoOpportunity(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 20},
		fixedDepth{"cex": 100},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp)
}

// When a third venue makes both directions profitable, only the
// higher-profit one is emitted; the other is discarded, never queued.
func TestDetector_TieBreakHigherProfit(t *testing.T) {
	cache := pricecache.New()
	seed(cache, "cex", 99.95, 100.00)
	seed(cache, "dex", 100.50, 100.60) // edge vs cex: 0.40 after fees
	seed(cache, "perp", 101.20, 101.30) // edge vs cex: 1.10 after fees

	d := newTestDetector(t, cache,
		fixedCapital{"cex": 10, "dex": 10, "perp": 10},
		fixedDepth{"cex": 100, "dex": 100, "perp": 100},
		flatFees(0.10),
	)

	opp, err := d.Detect(context.Background(), "SOL/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.Venue("perp"), opp.Legs[1].Venue)
	assert.InDelta(t, 1.10*10, opp.ExpectedProfit, 1e-9)
}

func TestStaticFeeModel_SumsComponents(t *testing.T) {
	m := StaticFeeModel{
		VenueRate:    map[domain.Venue]float64{"cex": 0.001, "dex": 0.003},
		NetworkFee:   0.02,
		SlippageRate: 0.001,
	}
	got := m.Estimate("cex", "dex", 100, 101)
	// 100*0.001 + 101*0.003 + 0.02 + 0.001*100.5
	assert.InDelta(t, 0.1+0.303+0.02+0.1005, got, 1e-9)
}
