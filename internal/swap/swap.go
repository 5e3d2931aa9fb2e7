// Package swap disposes of platform fee shares by swapping them into the
// protocol token and burning the proceeds. The in-process implementation
// models the burn as a transfer to an unrecoverable sink account.
package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// BurnAccount is the sink address swapped fees are sent to. Nothing holds its
// key; credits to it are permanently out of circulation.
var BurnAccount = common.BytesToAddress(crypto.Keccak256([]byte("poolbet/burn"))[12:])

// Swapper implements domain.Swapper over a ledger. When Disabled is set every
// swap fails, exercising the engine's treasury-transfer fallback path.
type Swapper struct {
	ledger   domain.Ledger
	disabled bool
}

// New returns a live swapper.
func New(l domain.Ledger) *Swapper {
	return &Swapper{ledger: l}
}

// NewDisabled returns a swapper that always fails.
func NewDisabled(l domain.Ledger) *Swapper {
	return &Swapper{ledger: l, disabled: true}
}

// SwapAndBurn moves amount from the payer into the burn sink.
func (s *Swapper) SwapAndBurn(ctx context.Context, from common.Address, amount *big.Int) error {
	if s.disabled {
		return domain.ErrNotAllowed
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	return s.ledger.Transfer(ctx, from, BurnAccount, amount)
}
