package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the value-transfer collaborator: a fungible-unit balance sheet
// external to the engine. The engine only ever moves collateral it directly
// holds, and verifies that balances change by the exact requested amount.
type Ledger interface {
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// OracleRequest carries the spawn-time parameters for an external resolution
// source. The engine never pushes data to the oracle after creation; it polls
// the read-only views at claim time.
type OracleRequest struct {
	Requestor   common.Address
	OracleCount int
	Reward      *big.Int
	FixedFee    *big.Int
	Creator     common.Address
	EndTime     time.Time
	OptionCount int
	MetadataURI string
}

// ResolutionSource is the read-only view of a spawned oracle.
type ResolutionSource interface {
	// WinnerOption returns the oracle's chosen option (1-based) once
	// finalized.
	WinnerOption(ctx context.Context) (int, error)
	// WinnerFinalized reports whether the oracle has settled on a winner.
	WinnerFinalized(ctx context.Context) (bool, error)
	// TimeExtended returns how many deadline extensions the oracle has
	// granted itself.
	TimeExtended(ctx context.Context) (int, error)
	// EndTime returns the oracle's current deadline.
	EndTime(ctx context.Context) (time.Time, error)
	// Refund returns the oracle's escrowed reward to the requestor and
	// reports the refunded amount. Used when the oracle stalls.
	Refund(ctx context.Context) (*big.Int, error)
}

// OracleFactory spawns external resolution sources.
type OracleFactory interface {
	CreateSource(ctx context.Context, req OracleRequest) (ResolutionSource, error)
}

// Swapper disposes of the platform's fee share via the token-burn/swap
// mechanism. A swap failure is recovered locally by the engine with a direct
// treasury transfer, so implementations may fail without breaking settlement.
type Swapper interface {
	SwapAndBurn(ctx context.Context, from common.Address, amount *big.Int) error
}
