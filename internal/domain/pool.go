package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolStatus represents the lifecycle state of a prediction pool.
type PoolStatus string

const (
	PoolStatusOpen      PoolStatus = "open"
	PoolStatusFinalized PoolStatus = "finalized"
	PoolStatusDisputed  PoolStatus = "disputed"
	PoolStatusClaimable PoolStatus = "claimable"
)

// FeeTier grants a discounted platform rate once total pool funds cross
// MinFunds. Tiers are evaluated highest threshold first.
type FeeTier struct {
	MinFunds         *big.Int
	PlatformPerMille int64
}

// FeeSchedule holds the per-pool fee rates in parts-per-thousand and the
// tiered platform discounts.
type FeeSchedule struct {
	PlatformPerMille  int64
	LiquidityPerMille int64
	CreatorPerMille   int64
	ResolverPerMille  int64
	Tiers             []FeeTier
}

// PoolParams is the parameter bundle the registry uses to create a pool.
type PoolParams struct {
	ID               string
	Question         string
	Options          []string // option names, index 0 = option 1
	StartTime        time.Time
	EndTime          time.Time
	Creator          common.Address
	Resolver         common.Address
	Public           bool // public pools resolve via a spawned oracle
	Fees             FeeSchedule
	DisputeWindow    time.Duration
	DisputeFeeCap    *big.Int
	InitialLiquidity *big.Int
	LiquiditySplit   []int // percent per option, sums to 100
	MetadataURI      string
}

// PoolRecord is the store/API mirror of a pool's current state. Amounts are
// decimal strings of base units, addresses are hex strings.
type PoolRecord struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Options     []string   `json:"options"`
	Creator     string     `json:"creator"`
	Resolver    string     `json:"resolver"`
	Public      bool       `json:"public"`
	Status      PoolStatus `json:"status"`
	Winner      int        `json:"winner"` // 0 = unset
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	TotalFunds  string     `json:"total_funds"`
	TotalShares string     `json:"total_shares"`
	OptionFunds []string   `json:"option_funds"`
	MetadataURI string     `json:"metadata_uri,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DisputeRecord mirrors a pool's dispute, created when a party contests the
// chosen winner.
type DisputeRecord struct {
	PoolID           string    `json:"pool_id"`
	DisputedWinner   int       `json:"disputed_winner"`
	Disputer         string    `json:"disputer"`
	Fee              string    `json:"fee"`
	OriginalResolver string    `json:"original_resolver"`
	OpenedAt         time.Time `json:"opened_at"`
}
