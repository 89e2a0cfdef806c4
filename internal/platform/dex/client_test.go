package dex

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestProbePricesSpreadStraddlesMid(t *testing.T) {
	// 1000 base / 100000 quote, marginal price 100.
	bid, ask := probePrices(1000, 100000, 1.0)

	assert.Less(t, bid, 100.0)
	assert.Greater(t, ask, 100.0)
	// One unit against a thousand-unit reserve should stay within a percent.
	assert.InDelta(t, 100.0, bid, 1.0)
	assert.InDelta(t, 100.0, ask, 1.0)
}

func TestProbePricesFeeWidensSpread(t *testing.T) {
	bid, ask := probePrices(1e9, 1e11, 1.0)

	// With near-infinite depth the spread reduces to the 0.3% LP fee.
	assert.InDelta(t, 100.0*0.997, bid, 0.001)
	assert.InDelta(t, 100.0/0.997, ask, 0.001)
}

func TestProbePricesProbeExceedsReserve(t *testing.T) {
	_, ask := probePrices(0.5, 50, 1.0)
	assert.Zero(t, ask)
}

func TestWeiRoundTrip(t *testing.T) {
	wei := toWei(1.5, 18)
	assert.Equal(t, 0, wei.Cmp(big.NewInt(0).Mul(big.NewInt(15), exp10(17))))
	assert.InDelta(t, 1.5, fromWei(wei, 18), 1e-12)

	assert.InDelta(t, 0.000001, fromWei(toWei(0.000001, 6), 6), 1e-15)
	assert.Zero(t, fromWei(nil, 18))
}

func exp10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func TestFarmSourceAPY(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools/SOL-USDC", r.URL.Path)
		w.Write([]byte(`{"apy":0.42}`))
	}))
	defer srv.Close()

	fs := NewFarmSource(srv.URL, []domain.FarmPair{{Pool: "SOL-USDC", Token: "SOL", Quote: "USDC"}}, nil)

	pairs, err := fs.Pairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	apy, err := fs.APY(context.Background(), pairs[0])
	require.NoError(t, err)
	assert.Equal(t, 0.42, apy)
}

func TestFarmSourceAPYUnavailable(t *testing.T) {
	fs := NewFarmSource("http://127.0.0.1:1", nil, nil)
	_, err := fs.APY(context.Background(), domain.FarmPair{Pool: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}
