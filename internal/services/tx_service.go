package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"gorm.io/gorm"
)

// TransactionService persists the client's view of every submission it made.
type TransactionService interface {
	CreateTransactionRecord(ctx context.Context, record *models.TransactionRecord) (string, error)
	GetTransactionRecord(ctx context.Context, id string) (*models.TransactionRecord, error)
	GetTransactionRecordByHash(ctx context.Context, hash string) (*models.TransactionRecord, error)
	UpdateTransactionRecord(ctx context.Context, id string, updates map[string]any) error
	UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, vmStatus, abortCode string) error
	UpdateMirrorStatus(ctx context.Context, id string, status models.MirrorStatus, mirrorErr error) error
	ListTransactionRecordsByStatus(ctx context.Context, status models.TransactionStatus, limit int) ([]models.TransactionRecord, error)
	// ListMirrorFailures returns confirmed records whose mirror sync failed, oldest first.
	ListMirrorFailures(ctx context.Context, limit int) ([]models.TransactionRecord, error)
	ListTransactionRecordsByPool(ctx context.Context, pool string) ([]models.TransactionRecord, error)
}

type transactionService struct {
	db *gorm.DB
}

func NewTransactionService(db *gorm.DB) TransactionService {
	return &transactionService{db: db}
}

func (s *transactionService) CreateTransactionRecord(ctx context.Context, record *models.TransactionRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = models.TransactionStatusPending
	}
	if record.MirrorStatus == "" {
		record.MirrorStatus = models.MirrorStatusPending
	}
	if record.Metadata == nil {
		record.Metadata = []models.TransactionMetadata{}
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", fmt.Errorf("failed to create transaction record: %w", err)
	}
	return record.ID, nil
}

func (s *transactionService) GetTransactionRecord(ctx context.Context, id string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetTransactionRecordByHash returns the most recent record carrying hash.
func (s *transactionService) GetTransactionRecordByHash(ctx context.Context, hash string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.db.WithContext(ctx).Where("hash = ?", hash).Order("created_at desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *transactionService) UpdateTransactionRecord(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now()
	result := s.db.WithContext(ctx).Model(&models.TransactionRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

func (s *transactionService) UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, vmStatus, abortCode string) error {
	updates := map[string]any{"status": status}
	if vmStatus != "" {
		updates["vm_status"] = vmStatus
	}
	if abortCode != "" {
		updates["abort_code"] = abortCode
	}
	return s.UpdateTransactionRecord(ctx, id, updates)
}

func (s *transactionService) UpdateMirrorStatus(ctx context.Context, id string, status models.MirrorStatus, mirrorErr error) error {
	message := ""
	if mirrorErr != nil {
		message = mirrorErr.Error()
	}
	return s.UpdateTransactionRecord(ctx, id, map[string]any{
		"mirror_status": status,
		"mirror_error":  message,
	})
}

func (s *transactionService) ListTransactionRecordsByStatus(ctx context.Context, status models.TransactionStatus, limit int) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	query := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

func (s *transactionService) ListMirrorFailures(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	query := s.db.WithContext(ctx).
		Where("status = ? AND mirror_status = ?", models.TransactionStatusConfirmed, models.MirrorStatusFailed).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

func (s *transactionService) ListTransactionRecordsByPool(ctx context.Context, pool string) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	err := s.db.WithContext(ctx).Where("pool_address = ?", pool).Order("created_at asc").Find(&records).Error
	return records, err
}
