package domain

import "time"

// EventType identifies a pool state mutation.
type EventType string

const (
	EventEntry          EventType = "entry"
	EventLiquidity      EventType = "liquidity"
	EventOrderPlaced    EventType = "order_placed"
	EventOrderFilled    EventType = "order_filled"
	EventOrderCancelled EventType = "order_cancelled"
	EventPoolCreated    EventType = "pool_created"
	EventPoolClosed     EventType = "pool_closed"
	EventWinnerChosen   EventType = "winner_chosen"
	EventDisputeOpened  EventType = "dispute_opened"
	EventClaim          EventType = "claim"
	EventFeeBurn        EventType = "fee_burn"
	EventFundsSync      EventType = "funds_sync"
)

// PoolEvent is the structured record emitted for every state mutation. It is
// the sole interface consumed by external indexing: the indexer mirrors these
// into PostgreSQL and republishes them on the signal bus.
//
// Amounts are decimal strings of base units. Fields not meaningful for a
// given event type are left zero.
type PoolEvent struct {
	ID         string    `json:"id"`
	PoolID     string    `json:"pool_id"`
	Type       EventType `json:"type"`
	Time       time.Time `json:"time"`
	Actor      string    `json:"actor,omitempty"`
	Option     int       `json:"option,omitempty"`
	Tick       uint64    `json:"tick,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Shares     string    `json:"shares,omitempty"`
	Winner     int       `json:"winner,omitempty"`
	TotalFunds string    `json:"total_funds,omitempty"`
	// OptionFunds carries each option's funds total after the call,
	// giving observers a consistent per-call snapshot (funds_sync).
	OptionFunds []string          `json:"option_funds,omitempty"`
	Detail      map[string]string `json:"detail,omitempty"`
}

// EventSink receives pool events as they are emitted by the engine.
type EventSink interface {
	Emit(ev PoolEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ev PoolEvent)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev PoolEvent) { f(ev) }
