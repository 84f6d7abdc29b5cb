package models

import "time"

type TransactionStatus string

type TransactionType string

type MirrorStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
	// TransactionStatusUnknown means submission or confirmation timed out. Verify before resubmitting.
	TransactionStatusUnknown TransactionStatus = "unknown"
)

const (
	TransactionTypePoolCreation         TransactionType = "pool_creation"
	TransactionTypeDeposit              TransactionType = "deposit"
	TransactionTypeWithdraw             TransactionType = "withdraw"
	TransactionTypeAddYield             TransactionType = "add_yield"
	TransactionTypeLockAndStake         TransactionType = "lock_and_stake"
	TransactionTypeRetryStake           TransactionType = "retry_stake"
	TransactionTypeAutoResolve          TransactionType = "auto_resolve"
	TransactionTypeResolveAndDistribute TransactionType = "resolve_and_distribute"
	TransactionTypeCompleteSettlement   TransactionType = "complete_settlement"
	TransactionTypeStake                TransactionType = "stake"
	TransactionTypeUnstake              TransactionType = "unstake"
	TransactionTypeProtocolUpdate       TransactionType = "protocol_update"
	TransactionTypeRegular              TransactionType = "regular"
)

const (
	MirrorStatusPending MirrorStatus = "pending"
	MirrorStatusSynced  MirrorStatus = "synced"
	MirrorStatusFailed  MirrorStatus = "failed"
	MirrorStatusSkipped MirrorStatus = "skipped"
)

// IsSettlement reports whether the transaction type can resolve a pool.
func (t TransactionType) IsSettlement() bool {
	switch t {
	case TransactionTypeAutoResolve, TransactionTypeResolveAndDistribute, TransactionTypeCompleteSettlement:
		return true
	}
	return false
}

type TransactionMetadata struct {
	Key   string `gorm:"not null" json:"key"`
	Value string `gorm:"not null" json:"value"`
}

// TransactionRecord tracks one ledger submission made by this service.
type TransactionRecord struct {
	ID              string                `gorm:"primaryKey" json:"id"`
	Hash            string                `gorm:"index" json:"hash"`
	Function        string                `gorm:"not null" json:"function"`
	TransactionType TransactionType       `gorm:"not null;index" json:"transaction_type"`
	Sender          string                `gorm:"index" json:"sender"`
	PoolAddress     string                `gorm:"index" json:"pool_address,omitempty"`
	Status          TransactionStatus     `gorm:"default:pending;index" json:"status"`
	VMStatus        string                `json:"vm_status,omitempty"`
	AbortCode       string                `json:"abort_code,omitempty"`
	MirrorStatus    MirrorStatus          `gorm:"default:pending;index" json:"mirror_status"`
	MirrorError     string                `json:"mirror_error,omitempty"`
	Metadata        []TransactionMetadata `gorm:"serializer:json" json:"metadata"`
	// Result holds the data of the transaction's main event once confirmed
	Result    JSON      `gorm:"type:text" json:"result,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetadataValue returns the value stored under key, or "".
func (r *TransactionRecord) MetadataValue(key string) string {
	for _, m := range r.Metadata {
		if m.Key == key {
			return m.Value
		}
	}
	return ""
}
