package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than pongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsReconnectDelay is the base delay before attempting to reconnect.
	wsReconnectDelay = 2 * time.Second

	// wsMaxReconnectDelay caps the exponential backoff.
	wsMaxReconnectDelay = 60 * time.Second
)

// QuoteHandler is called for every book-ticker update received on the stream.
type QuoteHandler func(domain.Quote)

// WSClient streams real-time top-of-book updates from the exchange. It is
// the low-latency complement to REST polling: quotes flow through the same
// handlers, so the cache sees whichever arrived last.
type WSClient struct {
	venue   domain.Venue
	wsURL   string
	symbols []string
	conn    *websocket.Conn

	mu     sync.RWMutex
	closed bool

	handlerMu     sync.RWMutex
	quoteHandlers []QuoteHandler

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a WebSocket client streaming book tickers for the
// given symbols.
func NewWSClient(venue domain.Venue, wsURL string, symbols []string) *WSClient {
	return &WSClient{
		venue:   venue,
		wsURL:   wsURL,
		symbols: symbols,
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and subscribes to the
// book-ticker stream for every configured symbol.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("cex/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("cex/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if err := w.sendSubscribe(); err != nil {
		return fmt.Errorf("cex/ws: subscribe: %w", err)
	}
	return nil
}

// OnQuote registers a handler called for every book-ticker update.
func (w *WSClient) OnQuote(handler QuoteHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.quoteHandlers = append(w.quoteHandlers, handler)
}

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendSubscribe sends the stream subscription. Caller must hold w.mu.
func (w *WSClient) sendSubscribe() error {
	streams := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		streams = append(streams, strings.ToLower(restSymbol(s))+"@bookTicker")
	}

	cmd := map[string]any{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     1,
	}

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers. On
// disconnect it attempts reconnection.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw message and routes book-ticker updates.
func (w *WSClient) handleMessage(raw []byte) {
	var tick wsBookTicker
	if err := json.Unmarshal(raw, &tick); err != nil || tick.Symbol == "" {
		return
	}

	bid, err := strconv.ParseFloat(tick.BidPrice, 64)
	if err != nil {
		return
	}
	ask, err := strconv.ParseFloat(tick.AskPrice, 64)
	if err != nil {
		return
	}

	ts := time.Now()
	if tick.EventMs > 0 {
		ts = time.UnixMilli(tick.EventMs)
	}

	quote := domain.Quote{
		Venue:     w.venue,
		Symbol:    w.displaySymbol(tick.Symbol),
		Bid:       bid,
		Ask:       ask,
		Timestamp: ts,
	}

	w.handlerMu.RLock()
	handlers := w.quoteHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(quote)
	}
}

// displaySymbol maps the exchange's compact symbol back to the configured
// instrument name, so cache keys stay consistent with the REST pollers.
func (w *WSClient) displaySymbol(compact string) string {
	for _, s := range w.symbols {
		if restSymbol(s) == strings.ToUpper(compact) {
			return s
		}
	}
	return compact
}

// reconnect re-establishes the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := wsReconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}
