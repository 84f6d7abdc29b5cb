package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMirrorNotFound = errors.New("mirror row not found")

// PoolSettlement is what the mirror needs to close a resolved pool.
type PoolSettlement struct {
	PoolID         string
	WinningOutcome string
	// Payouts maps each paid account to its payout, in display units.
	Payouts map[string]decimal.Decimal
}

// MirrorService reads and writes the off-chain mirror tables. Every write is
// idempotent so a hook can be replayed after a partial failure.
type MirrorService interface {
	UpsertPool(ctx context.Context, pool *models.PoolCreate) error
	UpdatePool(ctx context.Context, poolID string, updates map[string]any) error
	GetPool(ctx context.Context, poolID string) (*models.PoolCreate, error)
	ListPools(ctx context.Context, status models.PoolStatus) ([]models.PoolCreate, error)

	RecordChart(ctx context.Context, point *models.ChartData) error
	GetChart(ctx context.Context, poolID string, limit int) ([]models.ChartData, error)

	// SetHolderTickets stores the absolute ticket count of address in a pool.
	// Zero removes the holder.
	SetHolderTickets(ctx context.Context, poolID, address string, tickets uint64) error
	GetTopHolders(ctx context.Context, poolID string, limit int) ([]models.TopHolder, error)

	EnsureUser(ctx context.Context, address string) (*models.UserDetails, error)
	UpdateUserName(ctx context.Context, address, name string) (*models.UserDetails, error)
	GetUser(ctx context.Context, address string) (*models.UserDetails, error)
	// RefreshActiveTickets recomputes the tickets address holds in unresolved pools.
	RefreshActiveTickets(ctx context.Context, address string) error

	RecordHistory(ctx context.Context, entry *models.LotteryHistory) error
	MarkWithdrawn(ctx context.Context, poolID, address string) error
	GetHistory(ctx context.Context, address string) ([]models.LotteryHistory, error)
	// SettlePool marks the pool resolved, closes every active history row and
	// updates the players' stats. Rows already closed are left alone.
	SettlePool(ctx context.Context, settlement PoolSettlement) error
}

type mirrorService struct {
	db *gorm.DB
}

func NewMirrorService(db *gorm.DB) MirrorService {
	return &mirrorService{db: db}
}

func (s *mirrorService) UpsertPool(ctx context.Context, pool *models.PoolCreate) error {
	if pool.Status == "" {
		pool.Status = models.PoolStatusOpen
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "creator", "outcomes", "min", "max", "pool", "token", "image", "transaction_hash", "updated_at",
		}),
	}).Create(pool).Error
}

func (s *mirrorService) UpdatePool(ctx context.Context, poolID string, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.PoolCreate{}).Where("id = ?", poolID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMirrorNotFound
	}
	return nil
}

func (s *mirrorService) GetPool(ctx context.Context, poolID string) (*models.PoolCreate, error) {
	var pool models.PoolCreate
	if err := s.db.WithContext(ctx).Where("id = ?", poolID).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMirrorNotFound
		}
		return nil, err
	}
	return &pool, nil
}

func (s *mirrorService) ListPools(ctx context.Context, status models.PoolStatus) ([]models.PoolCreate, error) {
	var pools []models.PoolCreate
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&pools).Error; err != nil {
		return nil, err
	}
	return pools, nil
}

func (s *mirrorService) RecordChart(ctx context.Context, point *models.ChartData) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_hash"}},
		DoNothing: true,
	}).Create(point).Error
}

// GetChart returns the latest limit points in chronological order.
func (s *mirrorService) GetChart(ctx context.Context, poolID string, limit int) ([]models.ChartData, error) {
	if limit <= 0 {
		limit = 100
	}
	var points []models.ChartData
	err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

func (s *mirrorService) SetHolderTickets(ctx context.Context, poolID, address string, tickets uint64) error {
	db := s.db.WithContext(ctx)
	if tickets == 0 {
		return db.Where("pool_id = ? AND address = ?", poolID, address).Delete(&models.TopHolder{}).Error
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool_id"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"ticket_count", "updated_at"}),
	}).Create(&models.TopHolder{PoolID: poolID, Address: address, TicketCount: tickets}).Error
}

func (s *mirrorService) GetTopHolders(ctx context.Context, poolID string, limit int) ([]models.TopHolder, error) {
	if limit <= 0 {
		limit = 10
	}
	var holders []models.TopHolder
	err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("ticket_count DESC").Order("id ASC").
		Limit(limit).
		Find(&holders).Error
	if err != nil {
		return nil, err
	}
	return holders, nil
}

func (s *mirrorService) EnsureUser(ctx context.Context, address string) (*models.UserDetails, error) {
	user := models.UserDetails{Address: address, JoinedAt: time.Now().UTC(), TotalWin: decimal.Zero}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, address)
}

func (s *mirrorService) UpdateUserName(ctx context.Context, address, name string) (*models.UserDetails, error) {
	if _, err := s.EnsureUser(ctx, address); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.UserDetails{}).Where("address = ?", address).Update("name", name).Error; err != nil {
		return nil, err
	}
	return s.GetUser(ctx, address)
}

func (s *mirrorService) GetUser(ctx context.Context, address string) (*models.UserDetails, error) {
	var user models.UserDetails
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMirrorNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *mirrorService) RefreshActiveTickets(ctx context.Context, address string) error {
	return refreshActiveTickets(s.db.WithContext(ctx), address)
}

func refreshActiveTickets(db *gorm.DB, address string) error {
	var active uint64
	err := db.Model(&models.TopHolder{}).
		Select("COALESCE(SUM(top_holders.ticket_count), 0)").
		Joins("LEFT JOIN pool_create ON pool_create.id = top_holders.pool_id").
		Where("top_holders.address = ?", address).
		Where("pool_create.status IS NULL OR pool_create.status <> ?", models.PoolStatusResolved).
		Scan(&active).Error
	if err != nil {
		return err
	}
	return db.Model(&models.UserDetails{}).Where("address = ?", address).Update("active_tickets", active).Error
}

func (s *mirrorService) RecordHistory(ctx context.Context, entry *models.LotteryHistory) error {
	if entry.Status == "" {
		entry.Status = models.LotteryStatusActive
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_hash"}},
		DoNothing: true,
	}).Create(entry).Error
}

func (s *mirrorService) MarkWithdrawn(ctx context.Context, poolID, address string) error {
	return s.db.WithContext(ctx).Model(&models.LotteryHistory{}).
		Where("pool_id = ? AND user_address = ? AND status = ?", poolID, address, models.LotteryStatusActive).
		Update("status", models.LotteryStatusWithdrawn).Error
}

func (s *mirrorService) GetHistory(ctx context.Context, address string) ([]models.LotteryHistory, error) {
	var history []models.LotteryHistory
	if err := s.db.WithContext(ctx).Where("user_address = ?", address).Order("played_at DESC").Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

func (s *mirrorService) SettlePool(ctx context.Context, settlement PoolSettlement) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.PoolCreate{}).Where("id = ?", settlement.PoolID).Updates(map[string]any{
			"status":          models.PoolStatusResolved,
			"winning_outcome": settlement.WinningOutcome,
		}).Error
		if err != nil {
			return err
		}

		var players []string
		err = tx.Model(&models.LotteryHistory{}).
			Where("pool_id = ? AND status = ?", settlement.PoolID, models.LotteryStatusActive).
			Distinct().Pluck("user_address", &players).Error
		if err != nil {
			return err
		}

		for _, player := range players {
			payout, won := settlement.Payouts[player]
			status := models.LotteryStatusLost
			if won {
				status = models.LotteryStatusWon
			}
			result := tx.Model(&models.LotteryHistory{}).
				Where("pool_id = ? AND user_address = ? AND status = ?", settlement.PoolID, player, models.LotteryStatusActive).
				Update("status", status)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			if err := recordGameResult(tx, player, won, payout); err != nil {
				return err
			}
		}

		var holders []string
		if err := tx.Model(&models.TopHolder{}).Where("pool_id = ?", settlement.PoolID).Pluck("address", &holders).Error; err != nil {
			return err
		}
		for _, holder := range holders {
			if err := refreshActiveTickets(tx, holder); err != nil {
				return err
			}
		}
		return nil
	})
}

// recordGameResult counts one finished game for address.
func recordGameResult(tx *gorm.DB, address string, won bool, payout decimal.Decimal) error {
	user := models.UserDetails{Address: address, JoinedAt: time.Now().UTC(), TotalWin: decimal.Zero}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return err
	}
	if err := tx.Where("address = ?", address).First(&user).Error; err != nil {
		return err
	}

	user.GamePlayed++
	if won {
		user.Wins++
		user.TotalWin = user.TotalWin.Add(payout)
	}
	user.WinRate = winRate(user.Wins, user.GamePlayed)
	return tx.Model(&models.UserDetails{}).Where("address = ?", address).Updates(map[string]any{
		"game_played": user.GamePlayed,
		"wins":        user.Wins,
		"total_win":   user.TotalWin,
		"win_rate":    user.WinRate,
	}).Error
}

// winRate is the percentage of games won, rounded to two decimals.
func winRate(wins, games uint) float64 {
	if games == 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(games)*10000) / 100
}
