package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/registry"
)

// TradeHandler serves the trading endpoints: curve entries, liquidity
// deposits, and limit orders. History queries go to the store mirrors.
type TradeHandler struct {
	reg    *registry.Registry
	orders domain.OrderStore
	fills  domain.FillStore
	events domain.EventStore
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(reg *registry.Registry, orders domain.OrderStore, fills domain.FillStore, events domain.EventStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		reg:    reg,
		orders: orders,
		fills:  fills,
		events: events,
		logger: logger,
	}
}

// enterRequest is the JSON body of POST /api/pools/{id}/enter.
type enterRequest struct {
	User   string `json:"user"`
	Option int    `json:"option"`
	Amount string `json:"amount"`
}

// Enter buys shares along the order book and bonding curve.
// POST /api/pools/{id}/enter
func (h *TradeHandler) Enter(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req enterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	shares, err := pool.Enter(r.Context(), user, req.Option, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pool_id": pool.ID(),
		"shares":  shares.String(),
	})
}

// liquidityRequest is the JSON body of POST /api/pools/{id}/liquidity.
type liquidityRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

// AddLiquidity deposits collateral pro-rata across all options.
// POST /api/pools/{id}/liquidity
func (h *TradeHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req liquidityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := pool.AddLiquidity(r.Context(), user, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pool_id": pool.ID(), "status": "ok"})
}

// placeOrderRequest is the JSON body of POST /api/pools/{id}/orders. Quantity
// is shares for a sell order and collateral for a buy order.
type placeOrderRequest struct {
	Maker    string `json:"maker"`
	Side     string `json:"side"`
	Option   int    `json:"option"`
	Tick     uint64 `json:"tick"`
	Quantity string `json:"quantity"`
}

// PlaceOrder rests a limit order, crossing the opposite side first. An empty
// order_id in the response means the order fully crossed.
// POST /api/pools/{id}/orders
func (h *TradeHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	maker, ok := parseAddress(req.Maker)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid maker address")
		return
	}
	quantity, ok := parseAmount(req.Quantity)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid quantity")
		return
	}

	var id common.Hash
	switch domain.OrderSide(req.Side) {
	case domain.OrderSideSell:
		id, err = pool.PlaceSellOrder(r.Context(), maker, req.Option, req.Tick, quantity)
	case domain.OrderSideBuy:
		id, err = pool.PlaceBuyOrder(r.Context(), maker, req.Option, req.Tick, quantity)
	default:
		writeError(w, http.StatusBadRequest, "side must be \"sell\" or \"buy\"")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]string{"pool_id": pool.ID()}
	if id != (common.Hash{}) {
		resp["order_id"] = id.Hex()
	} else {
		resp["order_id"] = ""
		resp["status"] = "fully_crossed"
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelOrder removes a resting order and releases its escrow.
// DELETE /api/pools/{id}/orders/{orderID}?caller=0x..&side=sell&option=1&tick=400000000000000000
func (h *TradeHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q := r.URL.Query()
	caller, ok := parseAddress(q.Get("caller"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	side := domain.OrderSide(q.Get("side"))
	if side != domain.OrderSideSell && side != domain.OrderSideBuy {
		writeError(w, http.StatusBadRequest, "side must be \"sell\" or \"buy\"")
		return
	}
	option, aerr := strconv.Atoi(q.Get("option"))
	if aerr != nil {
		writeError(w, http.StatusBadRequest, "invalid option")
		return
	}
	tick, ok := parseTick(q.Get("tick"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tick")
		return
	}
	orderID := common.HexToHash(pathParam(r, "orderID"))

	if err := pool.CancelOrder(r.Context(), caller, side, option, tick, orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pool_id": pool.ID(), "status": "cancelled"})
}

// ListOrders returns a pool's open resting orders from the store mirror.
// GET /api/pools/{id}/orders
func (h *TradeHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	orders, err := h.orders.ListOpen(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("pool_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "orders": orders})
}

// ListFills returns a pool's execution history from the store mirror.
// GET /api/pools/{id}/fills
func (h *TradeHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	fills, err := h.fills.ListByPool(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed",
			slog.String("pool_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "fills": fills})
}

// ListEvents returns a pool's event log from the store mirror.
// GET /api/pools/{id}/events
func (h *TradeHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	events, err := h.events.ListByPool(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("pool_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "events": events})
}
