package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain error onto an HTTP status and sends it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, errStatus(err), err.Error())
}

// errStatus buckets the domain errors into HTTP status codes. Unknown errors
// map to 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrDuplicateOrder),
		errors.Is(err, domain.ErrPoolFinalized),
		errors.Is(err, domain.ErrWinnerSet),
		errors.Is(err, domain.ErrDisputeOpen),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrOracleNotFinal),
		errors.Is(err, domain.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotResolver),
		errors.Is(err, domain.ErrNotMaker),
		errors.Is(err, domain.ErrNotAllowed),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrInvalidTick),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrLengthMismatch),
		errors.Is(err, domain.ErrInsufficientFund),
		errors.Is(err, domain.ErrSaleNotLive),
		errors.Is(err, domain.ErrSaleStillLive),
		errors.Is(err, domain.ErrPoolNotFinalized),
		errors.Is(err, domain.ErrWinnerNotSet),
		errors.Is(err, domain.ErrDisputeWindow),
		errors.Is(err, domain.ErrPriceCeiling),
		errors.Is(err, domain.ErrZeroLiquidity),
		errors.Is(err, domain.ErrPendingEscrow),
		errors.Is(err, domain.ErrNothingToClaim):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody strictly decodes the request body into v, rejecting unknown
// fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseAddress validates and decodes a 0x-prefixed hex address.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseAmount decodes a positive decimal base-unit amount.
func parseAmount(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() <= 0 {
		return nil, false
	}
	return n, true
}

// parseTick decodes a fixed-point tick price.
func parseTick(s string) (uint64, bool) {
	t, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return t, true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
