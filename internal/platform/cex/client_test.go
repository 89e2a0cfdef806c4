package cex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		Venue:         "binance",
		BaseURL:       srv.URL,
		APIKey:        "k",
		APISecret:     "s",
		SlippageBound: 0.01,
	})
}

func TestPollParsesBookTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"ETHUSDT","bidPrice":"100.50","bidQty":"12","askPrice":"100.60","askQty":"8"}`))
	})

	q, err := c.Poll(context.Background(), "binance", "ETH-USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.Venue("binance"), q.Venue)
	assert.Equal(t, "ETH-USDT", q.Symbol)
	assert.Equal(t, 100.50, q.Bid)
	assert.Equal(t, 100.60, q.Ask)
	assert.False(t, q.Timestamp.IsZero())
}

func TestPollTransportErrorWrapsFeedUnavailable(t *testing.T) {
	c := NewClient(ClientConfig{Venue: "binance", BaseURL: "http://127.0.0.1:1"})
	_, err := c.Poll(context.Background(), "binance", "ETH-USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestSubmitFilledOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		assert.Equal(t, "IOC", r.URL.Query().Get("timeInForce"))
		w.Write([]byte(`{
			"symbol":"ETHUSDT","orderId":7,"status":"FILLED","executedQty":"2",
			"fills":[{"price":"100","qty":"1","commission":"0.05"},
			         {"price":"101","qty":"1","commission":"0.05"}]
		}`))
	})

	res, err := c.Submit(context.Background(), domain.LegSpec{
		Venue: "binance", Side: domain.SideBuy, Instrument: "ETH-USDT",
		Size: 2, LimitPrice: 101,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LegFilled, res.Status)
	assert.Equal(t, 2.0, res.FilledSize)
	assert.Equal(t, 100.5, res.RealizedPrice)
	assert.Equal(t, 0.1, res.Fee)
}

func TestSubmitExpiredUnfilledIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","orderId":8,"status":"EXPIRED","executedQty":"0","fills":[]}`))
	})

	res, err := c.Submit(context.Background(), domain.LegSpec{
		Venue: "binance", Side: domain.SideSell, Instrument: "ETH-USDT", Size: 1, LimitPrice: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LegRejected, res.Status)
}

func TestSubmitPartialFill(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","orderId":9,"status":"EXPIRED","executedQty":"0.5",
			"fills":[{"price":"100","qty":"0.5","commission":"0.01"}]}`))
	})

	res, err := c.Submit(context.Background(), domain.LegSpec{
		Venue: "binance", Side: domain.SideBuy, Instrument: "ETH-USDT", Size: 1, LimitPrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LegPartial, res.Status)
	assert.Equal(t, 0.5, res.FilledSize)
}

func TestDepthReturnsThinnerSideWithinBand(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		// Second ask level is 2% away, outside the 1% bound.
		w.Write([]byte(`{"lastUpdateId":1,
			"bids":[["100","5"],["99.5","5"]],
			"asks":[["100.2","3"],["102.2","50"]]}`))
	})

	depth, err := c.Depth(context.Background(), "binance", "ETH-USDT")
	require.NoError(t, err)
	assert.Equal(t, 3.0, depth)
}

func TestRestSymbol(t *testing.T) {
	assert.Equal(t, "ETHUSDT", restSymbol("ETH-USDT"))
	assert.Equal(t, "ETHUSDT", restSymbol("eth/usdt"))
	assert.Equal(t, "ETHUSDT", restSymbol("ETHUSDT"))
}

func TestSplitInstrument(t *testing.T) {
	base, quote := splitInstrument("ETH-USDT")
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USDT", quote)

	base, quote = splitInstrument("SOLUSDT")
	assert.Equal(t, "SOL", base)
	assert.Equal(t, "USDT", quote)
}
