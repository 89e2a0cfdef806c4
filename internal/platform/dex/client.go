// Package dex adapts an on-chain AMM (Uniswap V2 style router and pairs) to
// the coordinator's venue ports. Quotes come from pool reserves, balances
// from ERC-20 balanceOf, and orders go out as signed router swaps.
package dex

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsIn","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const pairABI = `[
 {"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const erc20ABI = `[
 {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Pool describes one tradable AMM pair: the pair contract and the base and
// quote tokens with their decimals.
type Pool struct {
	Pair          common.Address
	BaseToken     common.Address
	QuoteToken    common.Address
	BaseDecimals  int
	QuoteDecimals int
}

// ClientConfig holds the chain connection and trading parameters.
type ClientConfig struct {
	Venue         domain.Venue
	RPCURL        string
	Router        common.Address
	Pools         map[string]Pool // keyed by instrument, e.g. "ETH-USDT"
	GasLimit      uint64
	SlippageBound float64
	SwapDeadline  time.Duration
}

// Client is the on-chain venue adapter. It implements the FeedSource,
// OrderVenue, CapitalView, and LiquidityView ports for one AMM.
type Client struct {
	venue  domain.Venue
	ec     *ethclient.Client
	router common.Address
	pools  map[string]Pool

	routerABI abi.ABI
	pairABI   abi.ABI
	erc20ABI  abi.ABI

	gasLimit      uint64
	slippageBound float64
	swapDeadline  time.Duration

	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// NewClient dials the RPC endpoint and prepares the ABIs. key may be nil
// for read-only use (quotes and balances but no swaps).
func NewClient(ctx context.Context, cfg ClientConfig, key *ecdsa.PrivateKey) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dex: dial %s: %w", cfg.RPCURL, err)
	}

	rABI, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("dex: parse router abi: %w", err)
	}
	pABI, err := abi.JSON(strings.NewReader(pairABI))
	if err != nil {
		return nil, fmt.Errorf("dex: parse pair abi: %w", err)
	}
	eABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("dex: parse erc20 abi: %w", err)
	}

	c := &Client{
		venue:         cfg.Venue,
		ec:            ec,
		router:        cfg.Router,
		pools:         cfg.Pools,
		routerABI:     rABI,
		pairABI:       pABI,
		erc20ABI:      eABI,
		gasLimit:      cfg.GasLimit,
		slippageBound: cfg.SlippageBound,
		swapDeadline:  cfg.SwapDeadline,
	}
	if c.gasLimit == 0 {
		c.gasLimit = 400_000
	}
	if c.swapDeadline <= 0 {
		c.swapDeadline = 5 * time.Minute
	}

	if key != nil {
		c.key = key
		c.from = ethcrypto.PubkeyToAddress(key.PublicKey)
		c.chainID, err = ec.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("dex: chain id: %w", err)
		}
	}
	return c, nil
}

// Venue returns the venue this client trades on.
func (c *Client) Venue() domain.Venue {
	return c.venue
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}

// Poll derives a quote from the pool reserves. The AMM has no order book,
// so bid and ask are the effective execution prices for a one-base-unit
// probe in each direction.
func (c *Client) Poll(ctx context.Context, venue domain.Venue, symbol string) (domain.Quote, error) {
	pool, ok := c.pools[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("dex: unknown instrument %s: %w", symbol, domain.ErrNoQuote)
	}

	baseReserve, quoteReserve, err := c.reserves(ctx, pool)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("dex: reserves %s: %w", symbol, err)
	}
	if baseReserve <= 0 || quoteReserve <= 0 {
		return domain.Quote{}, fmt.Errorf("dex: empty pool %s: %w", symbol, domain.ErrNoQuote)
	}

	bid, ask := probePrices(baseReserve, quoteReserve, 1.0)

	return domain.Quote{
		Venue:     c.venue,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

// Available returns the tradable size in base units: the smaller of the
// wallet's base token balance and its quote balance at the current price.
func (c *Client) Available(ctx context.Context, venue domain.Venue, instrument string) (float64, error) {
	if c.key == nil {
		return 0, errors.New("dex: no wallet configured")
	}
	pool, ok := c.pools[instrument]
	if !ok {
		return 0, fmt.Errorf("dex: unknown instrument %s: %w", instrument, domain.ErrNoQuote)
	}

	baseBal, err := c.tokenBalance(ctx, pool.BaseToken, pool.BaseDecimals)
	if err != nil {
		return 0, fmt.Errorf("dex: base balance: %w", err)
	}
	quoteBal, err := c.tokenBalance(ctx, pool.QuoteToken, pool.QuoteDecimals)
	if err != nil {
		return 0, fmt.Errorf("dex: quote balance: %w", err)
	}

	q, err := c.Poll(ctx, venue, instrument)
	if err != nil {
		return 0, err
	}
	if q.Ask <= 0 {
		return 0, domain.ErrNoQuote
	}

	buyable := quoteBal / q.Ask
	if baseBal < buyable {
		return baseBal, nil
	}
	return buyable, nil
}

// Depth approximates the size a constant-product pool absorbs before the
// price moves past the slippage bound: roughly reserve * bound / 2.
func (c *Client) Depth(ctx context.Context, venue domain.Venue, instrument string) (float64, error) {
	pool, ok := c.pools[instrument]
	if !ok {
		return 0, fmt.Errorf("dex: unknown instrument %s: %w", instrument, domain.ErrNoQuote)
	}
	baseReserve, _, err := c.reserves(ctx, pool)
	if err != nil {
		return 0, fmt.Errorf("dex: reserves %s: %w", instrument, err)
	}
	return baseReserve * c.slippageBound / 2, nil
}

// Submit executes the leg as a router swap. Buys swap quote for base, sells
// swap base for quote; the minimum-out is derived from the limit price. The
// swap either lands whole or reverts, so partial fills never occur here.
func (c *Client) Submit(ctx context.Context, spec domain.LegSpec) (domain.LegResult, error) {
	result := domain.LegResult{Spec: spec}

	if c.key == nil {
		result.Status = domain.LegRejected
		result.Err = "no wallet configured"
		return result, fmt.Errorf("dex: submit: %w", domain.ErrLegRejected)
	}
	pool, ok := c.pools[spec.Instrument]
	if !ok {
		result.Status = domain.LegRejected
		result.Err = "unknown instrument"
		return result, fmt.Errorf("dex: submit %s: %w", spec.Instrument, domain.ErrLegRejected)
	}

	var (
		path     []common.Address
		amountIn *big.Int
		minOut   *big.Int
	)
	switch spec.Side {
	case domain.SideBuy:
		// Spend quote, receive base. Cap spend at limit price, insist on
		// full base size out.
		path = []common.Address{pool.QuoteToken, pool.BaseToken}
		amountIn = toWei(spec.Size*spec.LimitPrice, pool.QuoteDecimals)
		minOut = toWei(spec.Size, pool.BaseDecimals)
	case domain.SideSell:
		// Spend base, insist on at least limit price worth of quote.
		path = []common.Address{pool.BaseToken, pool.QuoteToken}
		amountIn = toWei(spec.Size, pool.BaseDecimals)
		minOut = toWei(spec.Size*spec.LimitPrice, pool.QuoteDecimals)
	default:
		result.Status = domain.LegRejected
		result.Err = "unknown side"
		return result, fmt.Errorf("dex: submit: %w", domain.ErrLegRejected)
	}

	deadline := big.NewInt(time.Now().Add(c.swapDeadline).Unix())
	data, err := c.routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, c.from, deadline)
	if err != nil {
		result.Status = domain.LegRejected
		result.Err = err.Error()
		return result, fmt.Errorf("dex: pack swap: %w", err)
	}

	txHash, err := c.sendSwap(ctx, data)
	if err != nil {
		result.Status = domain.LegRejected
		result.Err = err.Error()
		return result, fmt.Errorf("dex: swap %s %s: %w", spec.Side, spec.Instrument, err)
	}

	result.Status = domain.LegFilled
	result.FilledSize = spec.Size
	result.RealizedPrice = spec.LimitPrice
	result.TxRef = txHash
	return result, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// reserves reads the pair contract and returns base and quote reserves in
// decimal units, ordered to match the pool definition.
func (c *Client) reserves(ctx context.Context, pool Pool) (base, quote float64, err error) {
	data, _ := c.pairABI.Pack("getReserves")
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &pool.Pair, Data: data}, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	outs, err := c.pairABI.Methods["getReserves"].Outputs.Unpack(raw)
	if err != nil || len(outs) < 2 {
		return 0, 0, errors.New("decode getReserves")
	}
	reserve0, ok0 := outs[0].(*big.Int)
	reserve1, ok1 := outs[1].(*big.Int)
	if !ok0 || !ok1 {
		return 0, 0, errors.New("unexpected reserve types")
	}

	t0data, _ := c.pairABI.Pack("token0")
	t0raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &pool.Pair, Data: t0data}, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	t0outs, err := c.pairABI.Methods["token0"].Outputs.Unpack(t0raw)
	if err != nil || len(t0outs) == 0 {
		return 0, 0, errors.New("decode token0")
	}
	token0, ok := t0outs[0].(common.Address)
	if !ok {
		return 0, 0, errors.New("unexpected token0 type")
	}

	if token0 == pool.BaseToken {
		return fromWei(reserve0, pool.BaseDecimals), fromWei(reserve1, pool.QuoteDecimals), nil
	}
	return fromWei(reserve1, pool.BaseDecimals), fromWei(reserve0, pool.QuoteDecimals), nil
}

// tokenBalance reads the wallet's ERC-20 balance in decimal units.
func (c *Client) tokenBalance(ctx context.Context, token common.Address, decimals int) (float64, error) {
	data, _ := c.erc20ABI.Pack("balanceOf", c.from)
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	outs, err := c.erc20ABI.Methods["balanceOf"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, errors.New("decode balanceOf")
	}
	bal, ok := outs[0].(*big.Int)
	if !ok {
		return 0, errors.New("unexpected balance type")
	}
	return fromWei(bal, decimals), nil
}

// sendSwap signs and broadcasts a router call as an EIP-1559 transaction.
func (c *Client) sendSwap(ctx context.Context, data []byte) (string, error) {
	tip, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = big.NewInt(2_000_000_000)
	}
	var baseFee *big.Int
	if h, _ := c.ec.HeaderByNumber(ctx, nil); h != nil && h.BaseFee != nil {
		baseFee = h.BaseFee
	} else if sp, _ := c.ec.SuggestGasPrice(ctx); sp != nil {
		baseFee = sp
	} else {
		baseFee = big.NewInt(5_000_000_000)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	nonce, err := c.ec.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	gas, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.router, Data: data})
	if err != nil || gas == 0 {
		gas = c.gasLimit
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &c.router,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
		Value:     big.NewInt(0),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// probePrices returns the effective bid and ask for swapping probe base
// units through a constant-product pool with the standard 0.3% LP fee.
func probePrices(baseReserve, quoteReserve, probe float64) (bid, ask float64) {
	const feeFactor = 0.997

	// Sell probe base units: quote out per base in.
	amountInWithFee := probe * feeFactor
	quoteOut := (amountInWithFee * quoteReserve) / (baseReserve + amountInWithFee)
	bid = quoteOut / probe

	// Buy probe base units: quote in per base out.
	if probe >= baseReserve {
		return bid, 0
	}
	quoteIn := (quoteReserve * probe) / ((baseReserve - probe) * feeFactor)
	ask = quoteIn / probe
	return bid, ask
}

// toWei scales a decimal amount to the token's integer representation.
func toWei(amount float64, decimals int) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(decimals)))
	wei := new(big.Int)
	f.Int(wei)
	return wei
}

// fromWei converts a scaled integer amount to decimal units.
func fromWei(x *big.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	f.Quo(f, big.NewFloat(math.Pow10(decimals)))
	val, _ := f.Float64()
	return val
}

var (
	_ domain.FeedSource    = (*Client)(nil)
	_ domain.OrderVenue    = (*Client)(nil)
	_ domain.CapitalView   = (*Client)(nil)
	_ domain.LiquidityView = (*Client)(nil)
)
