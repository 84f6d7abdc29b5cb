package ledger

import "gorm.io/gorm"

// Phase is the lifecycle phase of a pool. Transitions only move forward.
type Phase uint8

const (
	PhaseOpen     Phase = 0
	PhaseLocked   Phase = 1
	PhaseResolved Phase = 2
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseLocked:
		return "locked"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// SettlementStage records how far a draw has progressed once the pool is locked.
type SettlementStage string

const (
	SettlementNone        SettlementStage = "none"
	SettlementUnstaked    SettlementStage = "unstaked"
	SettlementDistributed SettlementStage = "distributed"
)

// Account holds a balance in base units and the next expected sequence number.
type Account struct {
	Address        string `gorm:"primaryKey;type:varchar(66)" json:"address"`
	Balance        uint64 `gorm:"not null;default:0" json:"balance"`
	SequenceNumber uint64 `gorm:"not null;default:0" json:"sequence_number"`
}

func (Account) TableName() string { return "ledger_accounts" }

// Pool is the authoritative record of a betting pool.
type Pool struct {
	Address        string          `gorm:"primaryKey;type:varchar(66)" json:"address"`
	Name           string          `gorm:"not null" json:"name"`
	Creator        string          `gorm:"index;not null" json:"creator"`
	Outcomes       []string        `gorm:"serializer:json" json:"outcomes"`
	MinEntry       uint64          `gorm:"not null" json:"min_entry"`
	MaxEntry       uint64          `gorm:"not null" json:"max_entry"`
	Phase          Phase           `gorm:"not null;default:0;index" json:"phase"`
	TotalDeposited uint64          `gorm:"not null;default:0" json:"total_deposited"`
	YieldBalance   uint64          `gorm:"not null;default:0" json:"yield_balance"`
	Shortfall      uint64          `gorm:"not null;default:0" json:"shortfall"`
	TotalPaidOut   uint64          `gorm:"not null;default:0" json:"total_paid_out"`
	StakePending   bool            `gorm:"not null;default:false" json:"stake_pending"`
	Settlement     SettlementStage `gorm:"not null;default:none;index" json:"settlement"`
	PendingOutcome string          `json:"pending_outcome"`
	WinningOutcome string          `json:"winning_outcome"`
	NextSeq        uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt      int64           `json:"created_at"`
	LastDrawAt     int64           `json:"last_draw_at"`
}

func (Pool) TableName() string { return "ledger_pools" }

// HasOutcome reports whether outcome is one of the pool's configured outcomes.
func (p *Pool) HasOutcome(outcome string) bool {
	for _, o := range p.Outcomes {
		if o == outcome {
			return true
		}
	}
	return false
}

// Participant is a single account's position in a pool.
type Participant struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PoolAddress string `gorm:"not null;uniqueIndex:idx_pool_account;type:varchar(66)" json:"pool_address"`
	Account     string `gorm:"not null;uniqueIndex:idx_pool_account;type:varchar(66)" json:"account"`
	Amount      uint64 `gorm:"not null" json:"amount"`
	Outcome     string `gorm:"not null" json:"outcome"`
	Tickets     uint64 `gorm:"not null" json:"tickets"`
	Seq         uint64 `gorm:"not null" json:"seq"`
	Payout      uint64 `gorm:"not null;default:0" json:"payout"`
	DepositedAt int64  `json:"deposited_at"`
}

func (Participant) TableName() string { return "ledger_participants" }

// Protocol is a yield protocol registry entry.
type Protocol struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	ProtocolID     ProtocolID `gorm:"uniqueIndex;not null" json:"protocol_id"`
	Name           string     `gorm:"not null" json:"name"`
	RateBps        uint64     `gorm:"not null;default:0" json:"rate_bps"`
	TotalDeposited uint64     `gorm:"not null;default:0" json:"total_deposited"`
	Active         bool       `gorm:"not null;default:false" json:"active"`
}

func (Protocol) TableName() string { return "ledger_protocols" }

// StakingConfig is the registry-wide singleton row.
type StakingConfig struct {
	ID                  uint       `gorm:"primaryKey" json:"-"`
	DefaultProtocol     ProtocolID `gorm:"not null" json:"default_protocol"`
	TotalStaked         uint64     `gorm:"not null;default:0" json:"total_staked"`
	TotalYieldGenerated uint64     `gorm:"not null;default:0" json:"total_yield_generated"`
}

func (StakingConfig) TableName() string { return "ledger_staking_config" }

// StakingPosition tracks where a pool's funds are staked. At most one per pool.
type StakingPosition struct {
	PoolAddress  string     `gorm:"primaryKey;type:varchar(66)" json:"pool_address"`
	StakedAmount uint64     `gorm:"not null" json:"staked_amount"`
	StakedAt     int64      `gorm:"not null" json:"staked_at"`
	UnlockAt     int64      `gorm:"not null" json:"unlock_at"`
	Protocol     ProtocolID `gorm:"not null" json:"protocol"`
}

func (StakingPosition) TableName() string { return "ledger_staking_positions" }

// CommittedTransaction is a transaction that has been executed, successfully or not.
type CommittedTransaction struct {
	Hash           string   `gorm:"primaryKey;type:varchar(66)" json:"hash"`
	Version        uint64   `gorm:"uniqueIndex;not null" json:"version"`
	Sender         string   `gorm:"index;not null" json:"sender"`
	SequenceNumber uint64   `gorm:"not null" json:"sequence_number"`
	Function       string   `gorm:"not null" json:"function"`
	Arguments      []any    `gorm:"serializer:json" json:"arguments"`
	Success        bool     `gorm:"not null" json:"success"`
	VMStatus       string   `json:"vm_status"`
	AbortCode      string   `json:"abort_code,omitempty"`
	Events         []Event  `gorm:"serializer:json" json:"events"`
	Changes        []Change `gorm:"serializer:json" json:"changes"`
	Timestamp      int64    `gorm:"not null" json:"timestamp"`
}

func (CommittedTransaction) TableName() string { return "ledger_transactions" }

func (t *CommittedTransaction) result() *TransactionResult {
	return &TransactionResult{
		Hash:           t.Hash,
		Version:        t.Version,
		Sender:         t.Sender,
		SequenceNumber: t.SequenceNumber,
		Function:       t.Function,
		Success:        t.Success,
		VMStatus:       t.VMStatus,
		AbortCode:      AbortCode(t.AbortCode),
		Events:         t.Events,
		Changes:        t.Changes,
		Timestamp:      t.Timestamp,
	}
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&Pool{},
		&Participant{},
		&Protocol{},
		&StakingConfig{},
		&StakingPosition{},
		&CommittedTransaction{},
	)
}
