package kalshi

import (
	"encoding/json"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
type KalshiMarket struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	YesSubTitle    string `json:"yes_sub_title"`
	Status         string `json:"status"` // "active", "open", "closed", "settled"
	YesBid         int64  `json:"yes_bid"`
	YesAsk         int64  `json:"yes_ask"`
	NoBid          int64  `json:"no_bid"`
	NoAsk          int64  `json:"no_ask"`
	Volume         int64  `json:"volume"`
	ExpirationTime string `json:"expiration_time"`
	CloseTime      string `json:"close_time"`
	Result         string `json:"result"`
}

// PriceSize is a [price_cents, quantity] level as Kalshi encodes it.
type PriceSize [2]int64

// Price returns the level price in cents.
func (l PriceSize) Price() int64 { return l[0] }

// Quantity returns the resting contracts.
func (l PriceSize) Quantity() int64 { return l[1] }

// KalshiOrder represents an order to be placed on the Kalshi exchange.
type KalshiOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "market" or "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"` // limit price in cents (1-99)
	NoPrice       *int64 `json:"no_price,omitempty"`
	TimeInForce   string `json:"time_in_force,omitempty"` // "immediate_or_cancel", "fill_or_kill"
}

// KalshiOrderState is the order object returned by create and get calls.
type KalshiOrderState struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	FillCount      int64  `json:"fill_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	TakerFillCost  int64  `json:"taker_fill_cost"`
	MakerFillCount int64  `json:"maker_fill_count"`
	MakerFillCost  int64  `json:"maker_fill_cost"`
	TakerFees      int64  `json:"taker_fees"`
	LastUpdateTime string `json:"last_update_time"`
}

// Filled returns the total filled contracts.
func (o KalshiOrderState) Filled() int64 {
	if o.FillCount > 0 {
		return o.FillCount
	}
	return o.TakerFillCount + o.MakerFillCount
}

// KalshiOrderResponse wraps a single order.
type KalshiOrderResponse struct {
	Order KalshiOrderState `json:"order"`
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e KalshiErrorResponse) text() (string, string) {
	if e.Error.Code != "" || e.Error.Message != "" {
		return e.Error.Message, e.Error.Code
	}
	return e.Message, e.Code
}

// --------------------------------------------------------------------------
// Kalshi WebSocket DTOs
// --------------------------------------------------------------------------

// KalshiWSMessage is the envelope for Kalshi WebSocket messages.
type KalshiWSMessage struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", "error", ...
	SID  int64           `json:"sid"`
	Seq  uint64          `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// KalshiWSSnapshot is the full book sent after subscribing.
type KalshiWSSnapshot struct {
	Ticker string      `json:"market_ticker"`
	Yes    []PriceSize `json:"yes"`
	No     []PriceSize `json:"no"`
}

// KalshiWSDelta changes the quantity resting at one price level.
type KalshiWSDelta struct {
	Ticker string `json:"market_ticker"`
	Price  int64  `json:"price"`
	Delta  int64  `json:"delta"`
	Side   string `json:"side"` // "yes" or "no"
}

// KalshiWSSubscribeCmd is the command sent to subscribe to Kalshi WebSocket channels.
type KalshiWSSubscribeCmd struct {
	ID     int64                   `json:"id"`
	Cmd    string                  `json:"cmd"` // "subscribe" or "unsubscribe"
	Params KalshiWSSubscribeParams `json:"params"`
}

// KalshiWSSubscribeParams defines the subscription parameters.
type KalshiWSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}

// BookUpdate is what the WS client hands to its handlers. Conn counts
// connections so sequence numbers stay ordered across reconnects.
type BookUpdate struct {
	Conn     uint32
	Seq      uint64
	Snapshot *KalshiWSSnapshot
	Delta    *KalshiWSDelta
}
