// Package cex adapts a centralized exchange REST/WebSocket API to the
// coordinator's venue ports: quotes, balances, order book depth, perpetual
// listings, and order submission.
package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Client is the REST client for the exchange API. It implements the
// FeedSource, OrderVenue, CapitalView, and LiquidityView ports for one
// venue.
type Client struct {
	venue      domain.Venue
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client

	// slippageBound limits how far from top of book Depth sums liquidity.
	slippageBound float64
}

// ClientConfig holds connection parameters for the exchange REST API.
type ClientConfig struct {
	Venue         domain.Venue
	BaseURL       string
	APIKey        string
	APISecret     string
	SlippageBound float64
	Timeout       time.Duration
}

// NewClient creates a REST client for one exchange venue.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		venue:         cfg.Venue,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		auth:          &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		httpClient:    &http.Client{Timeout: timeout},
		slippageBound: cfg.SlippageBound,
	}
}

// Venue returns the venue this client trades on.
func (c *Client) Venue() domain.Venue {
	return c.venue
}

// Poll fetches the current top of book for a symbol.
func (c *Client) Poll(ctx context.Context, venue domain.Venue, symbol string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("symbol", restSymbol(symbol))

	body, err := c.doPublic(ctx, "/api/v3/ticker/bookTicker", params)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("cex: poll %s: %w", symbol, err)
	}

	var ticker bookTickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return domain.Quote{}, fmt.Errorf("cex: decode book ticker: %w", err)
	}

	bid, err := strconv.ParseFloat(ticker.BidPrice, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("cex: parse bid %q: %w", ticker.BidPrice, err)
	}
	ask, err := strconv.ParseFloat(ticker.AskPrice, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("cex: parse ask %q: %w", ticker.AskPrice, err)
	}

	return domain.Quote{
		Venue:     c.venue,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

// Available returns the tradable size for an instrument in base units: the
// smaller of the free base balance (sellable) and the free quote balance
// converted at the current ask (buyable).
func (c *Client) Available(ctx context.Context, venue domain.Venue, instrument string) (float64, error) {
	base, quoteAsset := splitInstrument(instrument)

	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return 0, fmt.Errorf("cex: account: %w", err)
	}

	var account accountResponse
	if err := json.Unmarshal(body, &account); err != nil {
		return 0, fmt.Errorf("cex: decode account: %w", err)
	}

	var baseFree, quoteFree float64
	for _, b := range account.Balances {
		switch b.Asset {
		case base:
			baseFree, _ = strconv.ParseFloat(b.Free, 64)
		case quoteAsset:
			quoteFree, _ = strconv.ParseFloat(b.Free, 64)
		}
	}

	q, err := c.Poll(ctx, venue, instrument)
	if err != nil {
		return 0, err
	}
	if q.Ask <= 0 {
		return 0, domain.ErrNoQuote
	}

	buyable := quoteFree / q.Ask
	if baseFree < buyable {
		return baseFree, nil
	}
	return buyable, nil
}

// Depth sums order book quantity within the slippage bound of the best
// price on each side and returns the thinner side.
func (c *Client) Depth(ctx context.Context, venue domain.Venue, instrument string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", restSymbol(instrument))
	params.Set("limit", "20")

	body, err := c.doPublic(ctx, "/api/v3/depth", params)
	if err != nil {
		return 0, fmt.Errorf("cex: depth %s: %w", instrument, err)
	}

	var book depthResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return 0, fmt.Errorf("cex: decode depth: %w", err)
	}

	bidDepth := sumWithinBand(book.Bids, c.slippageBound, false)
	askDepth := sumWithinBand(book.Asks, c.slippageBound, true)

	if bidDepth < askDepth {
		return bidDepth, nil
	}
	return askDepth, nil
}

// HasPerp reports whether the exchange lists a tradable perpetual contract
// for the given token.
func (c *Client) HasPerp(ctx context.Context, token string) (bool, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(token)+"USDT")

	body, err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", params)
	if err != nil {
		return false, fmt.Errorf("cex: exchange info %s: %w", token, err)
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return false, fmt.Errorf("cex: decode exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.ContractType == "PERPETUAL" && s.Status == "TRADING" {
			return true, nil
		}
	}
	return false, nil
}

// Submit places an immediate-or-cancel limit order for the leg and reports
// what filled. A declined order comes back as a rejected LegResult wrapping
// ErrLegRejected rather than a transport error.
func (c *Client) Submit(ctx context.Context, spec domain.LegSpec) (domain.LegResult, error) {
	params := url.Values{}
	params.Set("symbol", restSymbol(spec.Instrument))
	params.Set("side", strings.ToUpper(string(spec.Side)))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "IOC")
	params.Set("quantity", strconv.FormatFloat(spec.Size, 'f', -1, 64))
	params.Set("price", strconv.FormatFloat(spec.LimitPrice, 'f', -1, 64))

	result := domain.LegResult{Spec: spec}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		result.Status = domain.LegRejected
		result.Err = err.Error()
		return result, fmt.Errorf("cex: submit %s %s: %w", spec.Side, spec.Instrument, err)
	}

	var order orderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		result.Status = domain.LegRejected
		result.Err = err.Error()
		return result, fmt.Errorf("cex: decode order response: %w", err)
	}

	filled, _ := strconv.ParseFloat(order.ExecutedQty, 64)
	result.FilledSize = filled
	result.TxRef = strconv.FormatInt(order.OrderID, 10)
	result.RealizedPrice, result.Fee = averageFill(order.Fills)

	switch order.Status {
	case "FILLED":
		result.Status = domain.LegFilled
	case "PARTIALLY_FILLED":
		result.Status = domain.LegPartial
	case "EXPIRED":
		// IOC orders that found no liquidity expire with zero fills.
		if filled > 0 {
			result.Status = domain.LegPartial
		} else {
			result.Status = domain.LegRejected
			result.Err = "order expired unfilled"
		}
	default:
		result.Status = domain.LegRejected
		result.Err = "order status " + order.Status
		return result, fmt.Errorf("cex: order %d: %w", order.OrderID, domain.ErrLegRejected)
	}

	return result, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	query := c.auth.SignQuery(params.Encode())
	fullURL := c.baseURL + path + "?" + query

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.auth.Headers() {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("HTTP %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
	}
	return body, nil
}

// averageFill returns the size-weighted average price and total commission
// across the order's fills.
func averageFill(fills []orderFill) (avgPrice, totalFee float64) {
	var notional, qty float64
	for _, f := range fills {
		p, err := strconv.ParseFloat(f.Price, 64)
		if err != nil {
			continue
		}
		q, err := strconv.ParseFloat(f.Qty, 64)
		if err != nil {
			continue
		}
		notional += p * q
		qty += q
		if fee, err := strconv.ParseFloat(f.Commission, 64); err == nil {
			totalFee += fee
		}
	}
	if qty > 0 {
		avgPrice = notional / qty
	}
	return avgPrice, totalFee
}

// restSymbol converts an instrument like "ETH-USDT" or "ETH/USDT" into the
// exchange's compact form "ETHUSDT".
func restSymbol(instrument string) string {
	s := strings.NewReplacer("-", "", "/", "").Replace(instrument)
	return strings.ToUpper(s)
}

// splitInstrument splits "ETH-USDT" into base and quote assets. An
// unseparated symbol falls back to treating USDT as the quote.
func splitInstrument(instrument string) (base, quote string) {
	for _, sep := range []string{"-", "/"} {
		if i := strings.Index(instrument, sep); i > 0 {
			return strings.ToUpper(instrument[:i]), strings.ToUpper(instrument[i+1:])
		}
	}
	u := strings.ToUpper(instrument)
	if strings.HasSuffix(u, "USDT") {
		return strings.TrimSuffix(u, "USDT"), "USDT"
	}
	return u, "USDT"
}

// sumWithinBand totals level quantities priced within the slippage bound of
// the best level. asks=true walks up from the best ask, otherwise down from
// the best bid.
func sumWithinBand(levels [][2]string, bound float64, asks bool) float64 {
	if len(levels) == 0 {
		return 0
	}
	best, err := strconv.ParseFloat(levels[0][0], 64)
	if err != nil || best <= 0 {
		return 0
	}

	var total float64
	for _, lvl := range levels {
		price, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil {
			continue
		}
		var drift float64
		if asks {
			drift = (price - best) / best
		} else {
			drift = (best - price) / best
		}
		if drift > bound {
			break
		}
		qty, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			continue
		}
		total += qty
	}
	return total
}

var (
	_ domain.FeedSource    = (*Client)(nil)
	_ domain.OrderVenue    = (*Client)(nil)
	_ domain.CapitalView   = (*Client)(nil)
	_ domain.LiquidityView = (*Client)(nil)
)
