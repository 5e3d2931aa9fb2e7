package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/registry"
)

// SettleHandler serves the settlement endpoints: closing a pool, choosing the
// winner, disputing it, and claiming payouts.
type SettleHandler struct {
	reg    *registry.Registry
	claims domain.ClaimStore
	logger *slog.Logger
}

// NewSettleHandler creates a SettleHandler.
func NewSettleHandler(reg *registry.Registry, claims domain.ClaimStore, logger *slog.Logger) *SettleHandler {
	return &SettleHandler{
		reg:    reg,
		claims: claims,
		logger: logger,
	}
}

// callerRequest is the JSON body of the settlement mutations that only need
// an acting address.
type callerRequest struct {
	Caller string `json:"caller"`
}

func (h *SettleHandler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return common.Address{}, false
	}
	addr, valid := parseAddress(req.Caller)
	if !valid {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return common.Address{}, false
	}
	return addr, true
}

// Close finalizes the pool, runs the fee waterfall, and burns the platform
// share.
// POST /api/pools/{id}/close
func (h *SettleHandler) Close(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := pool.Close(r.Context(), addr); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool.Record())
}

// chooseWinnerRequest is the JSON body of POST /api/pools/{id}/winner.
type chooseWinnerRequest struct {
	Caller string `json:"caller"`
	Option int    `json:"option"`
}

// ChooseWinner lets the resolver select the winning option of a private pool.
// POST /api/pools/{id}/winner
func (h *SettleHandler) ChooseWinner(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req chooseWinnerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := pool.ChooseWinner(addr, req.Option); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool.Record())
}

// OpenDispute contests the chosen winner. The disputer posts the dispute fee
// and a dispute oracle is spawned.
// POST /api/pools/{id}/dispute
func (h *SettleHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := pool.OpenDispute(r.Context(), addr); err != nil {
		writeDomainError(w, err)
		return
	}
	rec, _ := pool.Dispute()
	writeJSON(w, http.StatusOK, rec)
}

// GetDispute returns the pool's dispute record and the fee a new disputer
// would have to post.
// GET /api/pools/{id}/dispute
func (h *SettleHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"pool_id": pool.ID(),
		"fee":     pool.DisputeFee().String(),
	}
	if rec, ok := pool.Dispute(); ok {
		resp["dispute"] = rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// Claim pays out the caller's settlement reward.
// POST /api/pools/{id}/claim
func (h *SettleHandler) Claim(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	reward, err := pool.Claim(r.Context(), addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pool_id": pool.ID(),
		"account": addr.Hex(),
		"reward":  reward.String(),
	})
}

// ListClaims returns a pool's settled claims from the store mirror.
// GET /api/pools/{id}/claims
func (h *SettleHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	claims, err := h.claims.ListByPool(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list claims failed",
			slog.String("pool_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list claims")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "claims": claims})
}
