package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// JSON is a custom type for JSON fields
type JSON map[string]interface{}

// Implement the driver.Valuer interface for JSON type
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Implement the sql.Scanner interface for JSON type
func (j *JSON) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		*j = nil
		return nil
	default:
		return errors.New("type assertion to []byte failed")
	}

	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(bytes, j)
}

type PoolStatus string

const (
	PoolStatusOpen     PoolStatus = "open"
	PoolStatusLocked   PoolStatus = "locked"
	PoolStatusResolved PoolStatus = "resolved"
)

type ChartAction string

const (
	ChartActionBuy  ChartAction = "buy"
	ChartActionSell ChartAction = "sell"
)

type LotteryStatus string

const (
	LotteryStatusActive    LotteryStatus = "Active"
	LotteryStatusWon       LotteryStatus = "Won"
	LotteryStatusLost      LotteryStatus = "Lost"
	LotteryStatusWithdrawn LotteryStatus = "Withdrawn"
)

// PoolCreate mirrors a ledger pool for listing pages. The ledger stays authoritative.
type PoolCreate struct {
	// ID is the pool address on the ledger
	ID              string          `gorm:"primaryKey;type:varchar(66)" json:"id"`
	Name            string          `gorm:"not null;index" json:"name"`
	Creator         string          `gorm:"index" json:"creator"`
	Outcomes        []string        `gorm:"serializer:json" json:"outcomes"`
	Min             decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"min"`
	Max             decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"max"`
	Pool            decimal.Decimal `gorm:"type:decimal(36,18)" json:"pool"` // target pool size shown on the card
	Total           decimal.Decimal `gorm:"type:decimal(36,18)" json:"total"`
	Token           string          `gorm:"default:APT" json:"token"`
	Image           string          `json:"image,omitempty"`
	Status          PoolStatus      `gorm:"default:open" json:"status"`
	WinningOutcome  string          `json:"winning_outcome,omitempty"`
	TransactionHash string          `json:"transaction_hash"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (PoolCreate) TableName() string { return "pool_create" }

// ChartData is one buy (deposit) or sell (withdraw) point of a pool's activity chart.
type ChartData struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	PoolID          string          `gorm:"index;not null" json:"pool_id"`
	Account         string          `gorm:"index" json:"account"`
	Action          ChartAction     `gorm:"not null" json:"action"`
	Amount          decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	TransactionHash string          `gorm:"uniqueIndex;not null" json:"transaction_hash"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (ChartData) TableName() string { return "chart_data" }

type TopHolder struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PoolID      string    `gorm:"uniqueIndex:idx_holder_pool_address;not null" json:"pool_id"`
	Address     string    `gorm:"uniqueIndex:idx_holder_pool_address;not null" json:"address"`
	TicketCount uint64    `gorm:"not null" json:"ticket_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TopHolder) TableName() string { return "top_holders" }

type UserDetails struct {
	Address       string          `gorm:"primaryKey;type:varchar(66)" json:"address"`
	Name          *string         `json:"name,omitempty"`
	JoinedAt      time.Time       `json:"joined_at"`
	TotalWin      decimal.Decimal `gorm:"type:decimal(36,18)" json:"total_win"`
	ActiveTickets uint64          `json:"active_tickets"`
	GamePlayed    uint            `json:"game_played"`
	Wins          uint            `json:"wins"`
	WinRate       float64         `json:"win_rate"` // percent, two decimals
}

func (UserDetails) TableName() string { return "user_details" }

type LotteryHistory struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	UserAddress     string        `gorm:"index;not null" json:"user_address"`
	LotteryName     string        `gorm:"not null" json:"lottery_name"`
	PoolID          string        `gorm:"index;not null" json:"pool_id"`
	PlayedAt        time.Time     `json:"played_at"`
	Count           uint64        `json:"count"`
	Outcome         string        `json:"outcome"`
	TokenName       string        `json:"token_name"`
	Status          LotteryStatus `gorm:"default:Active" json:"status"`
	TransactionHash string        `gorm:"uniqueIndex;not null" json:"transaction_hash"`
}

func (LotteryHistory) TableName() string { return "lottery_history" }
