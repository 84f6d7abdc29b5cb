package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const reconcileBatch = 100

type ReconcileReport struct {
	Pools          int      `json:"pools"`
	Replayed       int      `json:"replayed"`
	Verified       int      `json:"verified"`
	StillFailing   []string `json:"still_failing,omitempty"`
	StillUnknown   []string `json:"still_unknown,omitempty"`
	PoolSyncErrors []string `json:"pool_sync_errors,omitempty"`
}

// MirrorSyncService repairs the mirror from the ledger.
type MirrorSyncService interface {
	// SyncPool overwrites the mirror row of pool with the ledger's state.
	SyncPool(ctx context.Context, pool string) error
	// Reconcile syncs every pool, replays failed mirror hooks and settles
	// records whose outcome is still unknown.
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

type mirrorSyncService struct {
	views     ViewService
	mirror    MirrorService
	executor  TransactionExecutor
	txService TransactionService
	token     models.Token
	logger    *zap.Logger
}

func NewMirrorSyncService(views ViewService, mirror MirrorService, executor TransactionExecutor, txService TransactionService, token models.Token, logger *zap.Logger) MirrorSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mirrorSyncService{
		views:     views,
		mirror:    mirror,
		executor:  executor,
		txService: txService,
		token:     token,
		logger:    logger,
	}
}

func (s *mirrorSyncService) SyncPool(ctx context.Context, pool string) error {
	address, err := poolAddress(pool)
	if err != nil {
		return err
	}
	info, err := readPool(ctx, s.views.Fresh, address)
	if err != nil {
		return err
	}

	existing, err := s.mirror.GetPool(ctx, address)
	switch {
	case errors.Is(err, ErrMirrorNotFound):
		existing = &models.PoolCreate{ID: address, Pool: decimal.Zero, Token: s.token.Symbol}
	case err != nil:
		return err
	}
	existing.Name = info.Name
	existing.Creator = info.Creator
	existing.Outcomes = info.Outcomes
	existing.Min = utils.FromBaseUnits(info.MinEntry, s.token.Decimals)
	existing.Max = utils.FromBaseUnits(info.MaxEntry, s.token.Decimals)
	if err := s.mirror.UpsertPool(ctx, existing); err != nil {
		return err
	}

	return s.mirror.UpdatePool(ctx, address, map[string]any{
		"total":           utils.FromBaseUnits(info.TotalDeposited, s.token.Decimals),
		"status":          models.PoolStatus(info.Status),
		"winning_outcome": info.WinningOutcome,
	})
}

func (s *mirrorSyncService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	failures, err := s.txService.ListMirrorFailures(ctx, reconcileBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list mirror failures: %w", err)
	}
	for _, record := range failures {
		outcome, err := s.executor.Verify(ctx, record.Hash)
		if err != nil {
			return report, err
		}
		if outcome.Degraded {
			report.StillFailing = append(report.StillFailing, record.Hash)
			continue
		}
		report.Replayed++
	}

	unknown, err := s.txService.ListTransactionRecordsByStatus(ctx, models.TransactionStatusUnknown, reconcileBatch)
	if err != nil {
		return report, fmt.Errorf("failed to list unknown transactions: %w", err)
	}
	for _, record := range unknown {
		outcome, err := s.executor.Verify(ctx, record.Hash)
		if err != nil {
			return report, err
		}
		if outcome.Status == OutcomeUnknownPending {
			report.StillUnknown = append(report.StillUnknown, record.Hash)
			continue
		}
		report.Verified++
	}

	// pools last so replayed hooks cannot leave stale totals behind
	values, err := s.views.Fresh(ctx, ledger.ModulePoolFactory, "get_all_pools")
	if err != nil {
		return report, err
	}
	pools, err := stringsAt(values, 0)
	if err != nil {
		return report, err
	}
	for _, pool := range pools {
		if err := s.SyncPool(ctx, pool); err != nil {
			s.logger.Warn("failed to sync pool mirror", zap.String("pool", pool), zap.Error(err))
			report.PoolSyncErrors = append(report.PoolSyncErrors, pool)
			continue
		}
		report.Pools++
	}

	s.logger.Info("mirror reconciled",
		zap.Int("pools", report.Pools),
		zap.Int("replayed", report.Replayed),
		zap.Int("verified", report.Verified),
		zap.Int("still_failing", len(report.StillFailing)),
		zap.Int("still_unknown", len(report.StillUnknown)),
	)
	return report, nil
}
