package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/registry"
)

// PoolHandler serves pool lifecycle and read endpoints. Live pools are read
// straight from the engine; list queries go to the store mirror, and price /
// book lookups try the cache before falling back to the engine.
type PoolHandler struct {
	reg    *registry.Registry
	pools  domain.PoolStore
	prices domain.PriceCache
	books  domain.BookCache
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(reg *registry.Registry, pools domain.PoolStore, prices domain.PriceCache, books domain.BookCache, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		reg:    reg,
		pools:  pools,
		prices: prices,
		books:  books,
		logger: logger,
	}
}

// feeTierRequest is one tiered platform discount in a create request.
type feeTierRequest struct {
	MinFunds         string `json:"min_funds"`
	PlatformPerMille int64  `json:"platform_per_mille"`
}

// createPoolRequest is the JSON body of POST /api/pools. Amounts are decimal
// strings of base units.
type createPoolRequest struct {
	ID                 string           `json:"id"`
	Question           string           `json:"question"`
	Options            []string         `json:"options"`
	StartTime          *time.Time       `json:"start_time"`
	EndTime            time.Time        `json:"end_time"`
	Creator            string           `json:"creator"`
	Resolver           string           `json:"resolver"`
	Public             bool             `json:"public"`
	MetadataURI        string           `json:"metadata_uri"`
	InitialLiquidity   string           `json:"initial_liquidity"`
	LiquiditySplit     []int            `json:"liquidity_split"`
	DisputeWindowHours int              `json:"dispute_window_hours"`
	DisputeFeeCap      string           `json:"dispute_fee_cap"`
	PlatformPerMille   int64            `json:"platform_per_mille"`
	LiquidityPerMille  int64            `json:"liquidity_per_mille"`
	CreatorPerMille    int64            `json:"creator_per_mille"`
	ResolverPerMille   int64            `json:"resolver_per_mille"`
	FeeTiers           []feeTierRequest `json:"fee_tiers"`
}

// CreatePool registers a new prediction pool and debits the creator's initial
// liquidity.
// POST /api/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}
	resolver, ok := parseAddress(req.Resolver)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resolver address")
		return
	}
	liquidity, ok := parseAmount(req.InitialLiquidity)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid initial_liquidity")
		return
	}
	feeCap, ok := parseAmount(req.DisputeFeeCap)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid dispute_fee_cap")
		return
	}

	params := domain.PoolParams{
		ID:        req.ID,
		Question:  req.Question,
		Options:   req.Options,
		EndTime:   req.EndTime,
		Creator:   creator,
		Resolver:  resolver,
		Public:    req.Public,
		Fees: domain.FeeSchedule{
			PlatformPerMille:  req.PlatformPerMille,
			LiquidityPerMille: req.LiquidityPerMille,
			CreatorPerMille:   req.CreatorPerMille,
			ResolverPerMille:  req.ResolverPerMille,
		},
		DisputeWindow:    time.Duration(req.DisputeWindowHours) * time.Hour,
		DisputeFeeCap:    feeCap,
		InitialLiquidity: liquidity,
		LiquiditySplit:   req.LiquiditySplit,
		MetadataURI:      req.MetadataURI,
	}
	if req.StartTime != nil {
		params.StartTime = *req.StartTime
	}
	for _, t := range req.FeeTiers {
		min, ok := parseAmount(t.MinFunds)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid fee tier min_funds")
			return
		}
		params.Fees.Tiers = append(params.Fees.Tiers, domain.FeeTier{
			MinFunds:         min,
			PlatformPerMille: t.PlatformPerMille,
		})
	}

	pool, err := h.reg.Create(r.Context(), params)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create pool failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pool.Record())
}

// listPoolsResponse wraps the list endpoint output with metadata.
type listPoolsResponse struct {
	Pools  []domain.PoolRecord `json:"pools"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// ListPools returns pools from the store mirror with pagination, optionally
// filtered by status.
// GET /api/pools?status=open&limit=50&offset=0
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		pools []domain.PoolRecord
		err   error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		pools, err = h.pools.ListByStatus(r.Context(), domain.PoolStatus(status), opts)
	} else {
		pools, err = h.pools.List(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pools failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pools")
		return
	}

	total, err := h.pools.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count pools failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count pools")
		return
	}

	writeJSON(w, http.StatusOK, listPoolsResponse{
		Pools:  pools,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetPool returns a single pool. Live pools come from the engine; pools no
// longer in memory fall back to the store mirror.
// GET /api/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if pool, err := h.reg.Get(id); err == nil {
		writeJSON(w, http.StatusOK, pool.Record())
		return
	}

	rec, err := h.pools.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get pool failed",
			slog.String("pool_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get pool")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// pricesResponse carries the per-option curve prices.
type pricesResponse struct {
	PoolID    string    `json:"pool_id"`
	Prices    []uint64  `json:"prices"`
	Timestamp time.Time `json:"timestamp"`
}

// GetPrices returns the per-option curve prices, preferring the cache.
// GET /api/pools/{id}/prices
func (h *PoolHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if h.prices != nil {
		if prices, ts, err := h.prices.GetPrices(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, pricesResponse{PoolID: id, Prices: prices, Timestamp: ts})
			return
		}
	}

	pool, err := h.reg.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pricesResponse{
		PoolID:    id,
		Prices:    pool.Prices(),
		Timestamp: time.Now().UTC(),
	})
}

// GetBook returns one option's aggregated order book, preferring the cache.
// GET /api/pools/{id}/book/{option}
func (h *PoolHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	option, err := strconv.Atoi(pathParam(r, "option"))
	if err != nil || option < 1 {
		writeError(w, http.StatusBadRequest, "invalid option")
		return
	}

	if h.books != nil {
		if snap, err := h.books.GetSnapshot(r.Context(), id, option); err == nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	pool, err := h.reg.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := pool.BookSnapshot(option)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// quoteResponse carries a simulated entry result.
type quoteResponse struct {
	PoolID string `json:"pool_id"`
	Option int    `json:"option"`
	Amount string `json:"amount"`
	Shares string `json:"shares"`
	Refund string `json:"refund"`
}

// GetQuote simulates an entry without mutating state.
// GET /api/pools/{id}/quote?option=1&amount=1000000000000000000
func (h *PoolHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q := r.URL.Query()
	option, aerr := strconv.Atoi(q.Get("option"))
	if aerr != nil {
		writeError(w, http.StatusBadRequest, "invalid option")
		return
	}
	amount, ok := parseAmount(q.Get("amount"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	shares, refund, err := pool.QuoteEntry(option, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		PoolID: pool.ID(),
		Option: option,
		Amount: amount.String(),
		Shares: shares.String(),
		Refund: refund.String(),
	})
}

// impactResponse carries the hypothetical post-entry price of one option.
type impactResponse struct {
	PoolID string `json:"pool_id"`
	Option int    `json:"option"`
	Amount string `json:"amount"`
	Price  uint64 `json:"price"`
}

// GetImpact returns the option's curve price as if amount were entered now.
// GET /api/pools/{id}/impact?option=1&amount=1000000000000000000
func (h *PoolHandler) GetImpact(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q := r.URL.Query()
	option, aerr := strconv.Atoi(q.Get("option"))
	if aerr != nil {
		writeError(w, http.StatusBadRequest, "invalid option")
		return
	}
	amount, ok := parseAmount(q.Get("amount"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	price, err := pool.PriceImpact(option, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impactResponse{
		PoolID: pool.ID(),
		Option: option,
		Amount: amount.String(),
		Price:  price,
	})
}

// amountToPriceResponse carries the collateral needed to reach a target price.
type amountToPriceResponse struct {
	PoolID string `json:"pool_id"`
	Option int    `json:"option"`
	Target uint64 `json:"target"`
	Amount string `json:"amount"`
}

// GetAmountToPrice returns the minimum collateral that moves the option's
// curve price to the target.
// GET /api/pools/{id}/amount-to-price?option=1&target=600000000000000000
func (h *PoolHandler) GetAmountToPrice(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q := r.URL.Query()
	option, aerr := strconv.Atoi(q.Get("option"))
	if aerr != nil {
		writeError(w, http.StatusBadRequest, "invalid option")
		return
	}
	target, ok := parseTick(q.Get("target"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid target price")
		return
	}

	amount, err := pool.AmountToPrice(option, target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountToPriceResponse{
		PoolID: pool.ID(),
		Option: option,
		Target: target,
		Amount: amount.String(),
	})
}

// balanceResponse carries a user's position in one pool.
type balanceResponse struct {
	PoolID    string   `json:"pool_id"`
	Account   string   `json:"account"`
	Shares    []string `json:"shares"`
	Liquidity string   `json:"liquidity"`
}

// GetBalance returns a user's share balances and liquidity stake.
// GET /api/pools/{id}/balance/{address}
func (h *PoolHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	addr, ok := parseAddress(pathParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	shares, liquidity := pool.Balance(addr)
	writeJSON(w, http.StatusOK, balanceResponse{
		PoolID:    pool.ID(),
		Account:   addr.Hex(),
		Shares:    shares,
		Liquidity: liquidity,
	})
}

// projectionResponse carries a user's hypothetical settlement payout.
type projectionResponse struct {
	PoolID    string   `json:"pool_id"`
	Account   string   `json:"account"`
	Liquidity string   `json:"liquidity"`
	ByOption  []string `json:"by_option"`
}

// GetProjection returns the payout a user would receive per winning option
// under the current fee waterfall.
// GET /api/pools/{id}/projection/{address}
func (h *PoolHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	pool, err := h.reg.Get(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	addr, ok := parseAddress(pathParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	proj := pool.ProjectedPayout(addr)
	resp := projectionResponse{
		PoolID:    pool.ID(),
		Account:   addr.Hex(),
		Liquidity: proj.Liquidity.String(),
		ByOption:  make([]string, len(proj.ByOption)),
	}
	for i, part := range proj.ByOption {
		resp.ByOption[i] = part.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
