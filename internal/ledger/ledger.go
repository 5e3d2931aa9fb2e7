// Package ledger provides the in-process balance sheet pools settle against.
package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Ledger is a thread-safe in-memory implementation of domain.Ledger. Amounts
// are held as owned big.Int copies; callers never share pointers with the
// ledger.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

// Mint credits an account out of thin air. Used to fund accounts at deposit
// time and in tests.
func (l *Ledger) Mint(account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, amount)
}

// Burn debits an account permanently.
func (l *Ledger) Burn(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debit(account, amount)
}

// Transfer moves amount from one account to another. Fails without side
// effects when the sender balance is insufficient.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// BalanceOf returns an account's balance as a fresh copy.
func (l *Ledger) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// TotalSupply sums all balances. Conservation checks in tests rely on this.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := new(big.Int)
	for _, b := range l.balances {
		total.Add(total, b)
	}
	return total
}

func (l *Ledger) credit(account common.Address, amount *big.Int) {
	b, ok := l.balances[account]
	if !ok {
		b = new(big.Int)
		l.balances[account] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(account common.Address, amount *big.Int) error {
	b, ok := l.balances[account]
	if !ok || b.Cmp(amount) < 0 {
		return domain.ErrInsufficientFund
	}
	b.Sub(b, amount)
	if b.Sign() == 0 {
		delete(l.balances, account)
	}
	return nil
}
