// Package oracle implements the resolution-source collaborator: externally
// administered juries that pick a pool's winning option. The in-process
// Factory escrows the oracle reward from the requestor at spawn time; an
// administrative surface (the admin HTTP endpoints, or tests) finalizes the
// winner or extends the deadline.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// maxExtensions is how many deadline extensions a source will grant before
// refusing further ones.
const maxExtensions = 3

// Factory spawns Sources and escrows their rewards on the shared ledger.
type Factory struct {
	ledger domain.Ledger

	mu      sync.Mutex
	sources map[string]*Source
}

// NewFactory returns a factory paying rewards through the given ledger.
func NewFactory(l domain.Ledger) *Factory {
	return &Factory{ledger: l, sources: make(map[string]*Source)}
}

// CreateSource spawns a new resolution source. The reward is pulled from the
// requestor into the source's escrow account immediately, so a stalled source
// can refund it in full.
func (f *Factory) CreateSource(ctx context.Context, req domain.OracleRequest) (domain.ResolutionSource, error) {
	if req.OptionCount < 2 {
		return nil, domain.ErrInvalidOption
	}
	if req.OracleCount < 1 {
		return nil, domain.ErrInvalidAmount
	}

	id := uuid.NewString()
	s := &Source{
		id:          id,
		ledger:      f.ledger,
		account:     sourceAccount(id),
		requestor:   req.Requestor,
		reward:      new(big.Int),
		endTime:     req.EndTime,
		optionCount: req.OptionCount,
		oracleCount: req.OracleCount,
		metadataURI: req.MetadataURI,
	}
	if req.Reward != nil && req.Reward.Sign() > 0 {
		if err := f.ledger.Transfer(ctx, req.Requestor, s.account, req.Reward); err != nil {
			return nil, fmt.Errorf("oracle: escrow reward: %w", err)
		}
		s.reward.Set(req.Reward)
	}

	f.mu.Lock()
	f.sources[id] = s
	f.mu.Unlock()
	return s, nil
}

// Get returns a spawned source by ID, for the admin surface.
func (f *Factory) Get(id string) (*Source, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	return s, ok
}

// List returns the IDs of all spawned sources.
func (f *Factory) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.sources))
	for id := range f.sources {
		ids = append(ids, id)
	}
	return ids
}

func sourceAccount(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("poolbet/oracle/" + id))[12:])
}

// Source is one spawned resolution source. The engine only ever uses the
// read-only domain.ResolutionSource half; Finalize and Extend belong to the
// administrative surface.
type Source struct {
	id     string
	ledger domain.Ledger

	mu          sync.Mutex
	account     common.Address
	requestor   common.Address
	reward      *big.Int
	endTime     time.Time
	optionCount int
	oracleCount int
	metadataURI string

	finalized bool
	winner    int
	extended  int
	refunded  bool
}

// ID returns the source identifier.
func (s *Source) ID() string { return s.id }

// Account returns the source's escrow account.
func (s *Source) Account() common.Address { return s.account }

// OracleCount returns the jury size requested at spawn.
func (s *Source) OracleCount() int { return s.oracleCount }

// Finalize records the winning option and pays the escrowed reward to the
// recipient. Idempotence is not offered: a second call fails.
func (s *Source) Finalize(ctx context.Context, winner int, recipient common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return domain.ErrWinnerSet
	}
	if s.refunded {
		return domain.ErrNotAllowed
	}
	if winner < 1 || winner > s.optionCount {
		return domain.ErrInvalidOption
	}
	if s.reward.Sign() > 0 {
		if err := s.ledger.Transfer(ctx, s.account, recipient, s.reward); err != nil {
			return fmt.Errorf("oracle: pay reward: %w", err)
		}
	}
	s.finalized = true
	s.winner = winner
	return nil
}

// Extend pushes the deadline out, up to the extension allowance.
func (s *Source) Extend(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.refunded {
		return domain.ErrNotAllowed
	}
	if s.extended >= maxExtensions {
		return domain.ErrNotAllowed
	}
	s.extended++
	s.endTime = s.endTime.Add(d)
	return nil
}

// WinnerOption returns the finalized winner.
func (s *Source) WinnerOption(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finalized {
		return 0, domain.ErrOracleNotFinal
	}
	return s.winner, nil
}

// WinnerFinalized reports whether a winner has been recorded.
func (s *Source) WinnerFinalized(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized, nil
}

// TimeExtended returns the number of extensions granted.
func (s *Source) TimeExtended(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extended, nil
}

// EndTime returns the current deadline.
func (s *Source) EndTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime, nil
}

// Refund returns the escrowed reward to the requestor. Only a stalled,
// unfinalized source can be refunded, and only once.
func (s *Source) Refund(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.refunded {
		return nil, domain.ErrNotAllowed
	}
	amt := new(big.Int).Set(s.reward)
	if amt.Sign() > 0 {
		if err := s.ledger.Transfer(ctx, s.account, s.requestor, amt); err != nil {
			return nil, fmt.Errorf("oracle: refund: %w", err)
		}
	}
	s.refunded = true
	return amt, nil
}
