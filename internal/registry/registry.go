// Package registry creates prediction pools and tracks the live instances.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/engine"
)

// Registry is the pool factory. All pools it creates share one ledger, one
// oracle factory, one swapper, and one event sink.
type Registry struct {
	ledger   domain.Ledger
	oracles  domain.OracleFactory
	swapper  domain.Swapper
	sink     domain.EventSink
	treasury common.Address
	now      func() time.Time

	mu    sync.RWMutex
	pools map[string]*engine.Pool
}

// Config wires a Registry to the shared collaborators.
type Config struct {
	Ledger   domain.Ledger
	Oracles  domain.OracleFactory
	Swapper  domain.Swapper
	Sink     domain.EventSink
	Treasury common.Address
	Now      func() time.Time
}

// New returns an empty registry.
func New(cfg Config) *Registry {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		ledger:   cfg.Ledger,
		oracles:  cfg.Oracles,
		swapper:  cfg.Swapper,
		sink:     cfg.Sink,
		treasury: cfg.Treasury,
		now:      now,
		pools:    make(map[string]*engine.Pool),
	}
}

// Create validates the parameter bundle, debits the creator's initial
// liquidity, and registers the new pool. A blank ID is assigned a fresh UUID.
func (r *Registry) Create(ctx context.Context, params domain.PoolParams) (*engine.Pool, error) {
	if params.ID == "" {
		params.ID = uuid.NewString()
	}

	r.mu.Lock()
	if _, exists := r.pools[params.ID]; exists {
		r.mu.Unlock()
		return nil, domain.ErrAlreadyExists
	}
	// Reserve the slot before releasing the lock so two concurrent creates
	// with the same ID cannot both proceed.
	r.pools[params.ID] = nil
	r.mu.Unlock()

	pool, err := engine.NewPool(ctx, engine.Config{
		Params:   params,
		Ledger:   r.ledger,
		Oracles:  r.oracles,
		Swapper:  r.swapper,
		Sink:     r.sink,
		Treasury: r.treasury,
		Now:      r.now,
	})

	r.mu.Lock()
	if err != nil {
		delete(r.pools, params.ID)
	} else {
		r.pools[params.ID] = pool
	}
	r.mu.Unlock()
	return pool, err
}

// Get returns a live pool by ID.
func (r *Registry) Get(id string) (*engine.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[id]
	if !ok || p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// List returns all live pools ordered by ID.
func (r *Registry) List() []*engine.Pool {
	r.mu.RLock()
	out := make([]*engine.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		if p != nil {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of live pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.pools {
		if p != nil {
			n++
		}
	}
	return n
}
