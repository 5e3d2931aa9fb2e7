package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/poolbet/internal/oracle"
)

// OracleHandler serves the resolution-source admin endpoints. Finalize and
// Extend stand in for the oracle jury until an external resolution feed is
// attached, so they sit behind the API-key middleware like every other
// mutation.
type OracleHandler struct {
	oracles *oracle.Factory
	logger  *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(oracles *oracle.Factory, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{oracles: oracles, logger: logger}
}

// ListSources returns the IDs of all spawned resolution sources.
// GET /api/oracles
func (h *OracleHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": h.oracles.List()})
}

// sourceResponse mirrors one resolution source's state.
type sourceResponse struct {
	ID          string    `json:"id"`
	Account     string    `json:"account"`
	OracleCount int       `json:"oracle_count"`
	Winner      int       `json:"winner"`
	Finalized   bool      `json:"finalized"`
	Extended    int       `json:"extended"`
	EndTime     time.Time `json:"end_time"`
}

// GetSource returns one resolution source.
// GET /api/oracles/{id}
func (h *OracleHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := h.oracles.Get(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "oracle source not found")
		return
	}

	winner, _ := src.WinnerOption(r.Context())
	finalized, _ := src.WinnerFinalized(r.Context())
	extended, _ := src.TimeExtended(r.Context())
	endTime, _ := src.EndTime(r.Context())

	writeJSON(w, http.StatusOK, sourceResponse{
		ID:          src.ID(),
		Account:     src.Account().Hex(),
		OracleCount: src.OracleCount(),
		Winner:      winner,
		Finalized:   finalized,
		Extended:    extended,
		EndTime:     endTime,
	})
}

// finalizeRequest is the JSON body of POST /api/oracles/{id}/finalize.
type finalizeRequest struct {
	Winner    int    `json:"winner"`
	Recipient string `json:"recipient"`
}

// Finalize settles a resolution source on a winning option and pays the
// escrowed reward to the recipient.
// POST /api/oracles/{id}/finalize
func (h *OracleHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	src, ok := h.oracles.Get(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "oracle source not found")
		return
	}

	var req finalizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	recipient, valid := parseAddress(req.Recipient)
	if !valid {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := src.Finalize(r.Context(), req.Winner, recipient); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "oracle source finalized",
		slog.String("source_id", src.ID()),
		slog.Int("winner", req.Winner),
	)
	writeJSON(w, http.StatusOK, map[string]any{"id": src.ID(), "winner": req.Winner})
}

// extendRequest is the JSON body of POST /api/oracles/{id}/extend.
type extendRequest struct {
	Hours int `json:"hours"`
}

// Extend pushes a source's resolution deadline back. Each source allows a
// bounded number of extensions before it is considered stalled.
// POST /api/oracles/{id}/extend
func (h *OracleHandler) Extend(w http.ResponseWriter, r *http.Request) {
	src, ok := h.oracles.Get(pathParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "oracle source not found")
		return
	}

	var req extendRequest
	if err := decodeBody(r, &req); err != nil || req.Hours <= 0 {
		writeError(w, http.StatusBadRequest, "invalid extension")
		return
	}

	if err := src.Extend(time.Duration(req.Hours) * time.Hour); err != nil {
		writeDomainError(w, err)
		return
	}
	endTime, _ := src.EndTime(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"id": src.ID(), "end_time": endTime})
}
