package domain

import "time"

// OrderSide indicates whether a resting order sells shares or buys them with
// collateral.
type OrderSide string

const (
	OrderSideSell OrderSide = "sell"
	OrderSideBuy  OrderSide = "buy"
)

// OrderStatus tracks the resting-order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderRecord is the store/API mirror of a resting limit order. Quantity is
// shares for a sell order and collateral for a buy order, as a decimal string
// of base units. Tick is the fixed-point price in 1e18 units.
type OrderRecord struct {
	ID        string      `json:"id"`
	PoolID    string      `json:"pool_id"`
	Option    int         `json:"option"`
	Side      OrderSide   `json:"side"`
	Tick      uint64      `json:"tick"`
	Maker     string      `json:"maker"`
	Quantity  string      `json:"quantity"`
	Remaining string      `json:"remaining"`
	Status    OrderStatus `json:"status"`
	PlacedAt  time.Time   `json:"placed_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FillRecord is one execution against a resting order. Shares moved from the
// share-side party to the counterparty at the order's tick price; Cost is the
// collateral leg before fees.
type FillRecord struct {
	ID         string    `json:"id"`
	PoolID     string    `json:"pool_id"`
	OrderID    string    `json:"order_id"`
	Option     int       `json:"option"`
	Side       OrderSide `json:"side"` // side of the resting order
	Tick       uint64    `json:"tick"`
	Maker      string    `json:"maker"`
	Taker      string    `json:"taker"`
	Shares     string    `json:"shares"`
	Cost       string    `json:"cost"`
	ExecFee    string    `json:"exec_fee"`
	CreatorFee string    `json:"creator_fee"`
	Time       time.Time `json:"time"`
}

// ClaimRecord is one settled claim payout.
type ClaimRecord struct {
	ID             string    `json:"id"`
	PoolID         string    `json:"pool_id"`
	Account        string    `json:"account"`
	LiquidityShare string    `json:"liquidity_share"`
	WinningShare   string    `json:"winning_share"`
	Total          string    `json:"total"`
	Time           time.Time `json:"time"`
}
