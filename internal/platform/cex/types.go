package cex

// Wire types for the exchange REST and WebSocket APIs. Prices and sizes
// arrive as decimal strings and are parsed at the boundary.

type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"` // [price, qty]
	Asks         [][2]string `json:"asks"`
}

type accountResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type balanceEntry struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type orderResponse struct {
	Symbol      string      `json:"symbol"`
	OrderID     int64       `json:"orderId"`
	Status      string      `json:"status"`
	ExecutedQty string      `json:"executedQty"`
	Fills       []orderFill `json:"fills"`
}

type orderFill struct {
	Price      string `json:"price"`
	Qty        string `json:"qty"`
	Commission string `json:"commission"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// wsBookTicker is the payload pushed on the book-ticker stream.
type wsBookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
	EventMs  int64  `json:"E"`
}
