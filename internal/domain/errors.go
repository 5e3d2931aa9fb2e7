package domain

import "errors"

// Validation errors: rejected before any mutation.
var (
	ErrInvalidOption    = errors.New("invalid option index")
	ErrInvalidTick      = errors.New("price tick misaligned or out of range")
	ErrInvalidAmount    = errors.New("zero or insufficient amount")
	ErrLengthMismatch   = errors.New("array length mismatch")
	ErrInsufficientFund = errors.New("insufficient balance")
)

// State errors: rejected with no partial effect.
var (
	ErrSaleNotLive      = errors.New("sale window not live")
	ErrSaleStillLive    = errors.New("sale window still live")
	ErrPoolFinalized    = errors.New("pool already finalized")
	ErrPoolNotFinalized = errors.New("pool not finalized")
	ErrWinnerSet        = errors.New("winner already set")
	ErrWinnerNotSet     = errors.New("winner not set")
	ErrDisputeOpen      = errors.New("dispute already open")
	ErrDisputeWindow    = errors.New("outside dispute window")
	ErrDuplicateOrder   = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPriceCeiling     = errors.New("price at ceiling")
	ErrZeroLiquidity    = errors.New("degenerate zero-liquidity state")
	ErrAlreadyClaimed   = errors.New("already claimed")
	ErrPendingEscrow    = errors.New("pending orders must be resolved first")
	ErrNothingToClaim   = errors.New("nothing to claim")
	ErrReentrantCall    = errors.New("reentrant call")
)

// Authorization errors.
var (
	ErrNotResolver = errors.New("caller is not the resolver")
	ErrNotMaker    = errors.New("caller is not the order maker")
	ErrNotAllowed  = errors.New("caller not allowed")
)

// External-dependency errors. ErrOracleNotFinal is retryable: the caller must
// wait and resubmit the claim once the oracle settles.
var (
	ErrOracleNotFinal = errors.New("oracle not yet finalized")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
)
