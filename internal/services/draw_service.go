package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"go.uber.org/zap"
)

type DrawConfig struct {
	// SettleRetries bounds how often a settlement stuck after its unstake
	// checkpoint is resumed before giving up.
	SettleRetries int
	SettleBackoff time.Duration
}

// SettlementReport is the result of resuming one pending settlement.
type SettlementReport struct {
	PoolAddress string   `json:"pool_address"`
	Outcome     *Outcome `json:"outcome,omitempty"`
	Skipped     string   `json:"skipped,omitempty"`
	// Parked settlements are not resubmitted until an admin resolves the pool
	// with an outcome somebody backed.
	Parked      bool     `json:"parked,omitempty"`
}

// DrawService drives the draw lifecycle of a pool: lock and stake, then resolve
// and pay out.
type DrawService interface {
	LockAndStake(ctx context.Context, pool string) (*Outcome, error)
	RetryStake(ctx context.Context, pool string) (*Outcome, error)
	AutoResolve(ctx context.Context, pool string) (*Outcome, error)
	ResolveAndDistribute(ctx context.Context, pool, outcome string) (*Outcome, error)
	CompleteSettlement(ctx context.Context, pool string) (*Outcome, error)
	PendingSettlements(ctx context.Context) ([]string, error)
	// ResumeSettlements completes every pool whose funds are out of staking but
	// which has not paid out yet.
	ResumeSettlements(ctx context.Context) ([]SettlementReport, error)
}

type drawService struct {
	executor TransactionExecutor
	views    ViewService
	cfg      DrawConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	parked map[string]string
}

func NewDrawService(executor TransactionExecutor, views ViewService, cfg DrawConfig, logger *zap.Logger) DrawService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleBackoff <= 0 {
		cfg.SettleBackoff = 500 * time.Millisecond
	}
	return &drawService{
		executor: executor,
		views:    views,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
		parked:   make(map[string]string),
	}
}

func (s *drawService) LockAndStake(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.freshPool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase != ledger.PhaseOpen {
		return rejectedOutcome(fmt.Errorf("pool %s is %s: %w", info.Address, info.Status, ledger.ErrPoolNotOpen)), nil
	}

	outcome, err := s.execute(ctx, info, "lock_and_stake", models.TransactionTypeLockAndStake)
	if err != nil || !outcome.Succeeded() || outcome.Result == nil {
		return outcome, err
	}
	if event, ok := outcome.Result.FindEvent("StakeDeferredEvent"); ok {
		reason := eventString(event, "reason")
		s.logger.Warn("pool locked but stake deferred",
			zap.String("pool", info.Address),
			zap.String("kind", string(ErrorKindPartialFailure)),
			zap.String("reason", reason),
		)
		outcome.degrade(fmt.Errorf("pool locked, stake deferred until retry_stake: %s", reason))
	}
	return outcome, nil
}

func (s *drawService) RetryStake(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.freshPool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase != ledger.PhaseLocked || !info.StakePending || info.Settlement != string(ledger.SettlementNone) {
		return rejectedOutcome(fmt.Errorf("pool %s has no deferred stake: %w", info.Address, ledger.ErrInvalidPhase)), nil
	}
	return s.execute(ctx, info, "retry_stake", models.TransactionTypeRetryStake)
}

func (s *drawService) AutoResolve(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.freshPool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase == ledger.PhaseResolved {
		return rejectedOutcome(fmt.Errorf("pool %s is resolved: %w", info.Address, ledger.ErrInvalidPhase)), nil
	}
	if info.ParticipantCount == 0 {
		return rejectedOutcome(fmt.Errorf("pool %s has no participants: %w", info.Address, ledger.ErrNoWinners)), nil
	}

	outcome, err := s.execute(ctx, info, "auto_resolve", models.TransactionTypeAutoResolve)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, info.Address, outcome), nil
}

func (s *drawService) ResolveAndDistribute(ctx context.Context, pool, winning string) (*Outcome, error) {
	info, err := s.freshPool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase == ledger.PhaseResolved {
		return rejectedOutcome(fmt.Errorf("pool %s is resolved: %w", info.Address, ledger.ErrInvalidPhase)), nil
	}
	if !info.HasOutcome(winning) {
		return rejectedOutcome(fmt.Errorf("outcome %q is not offered: %w", winning, ledger.ErrInvalidOutcome)), nil
	}

	outcome, err := s.execute(ctx, info, "resolve_and_distribute", models.TransactionTypeResolveAndDistribute, winning)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, info.Address, outcome), nil
}

func (s *drawService) CompleteSettlement(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.freshPool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase != ledger.PhaseLocked || info.Settlement != string(ledger.SettlementUnstaked) {
		return rejectedOutcome(fmt.Errorf("pool %s has no settlement in progress: %w", info.Address, ledger.ErrInvalidPhase)), nil
	}
	return s.execute(ctx, info, "complete_settlement", models.TransactionTypeCompleteSettlement)
}

func (s *drawService) PendingSettlements(ctx context.Context) ([]string, error) {
	values, err := s.views.Fresh(ctx, ledger.ModuleManager, "get_pending_settlements")
	if err != nil {
		return nil, err
	}
	return stringsAt(values, 0)
}

func (s *drawService) ResumeSettlements(ctx context.Context) ([]SettlementReport, error) {
	pending, err := s.PendingSettlements(ctx)
	if err != nil {
		return nil, err
	}

	s.forgetParked(pending)

	reports := make([]SettlementReport, 0, len(pending))
	for _, address := range pending {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report := SettlementReport{PoolAddress: address}
		info, err := s.freshPool(ctx, address)
		if err != nil {
			report.Outcome = rejectedOutcome(err)
			reports = append(reports, report)
			continue
		}
		reason, err := s.unbacked(ctx, info)
		if err != nil {
			report.Outcome = rejectedOutcome(err)
			reports = append(reports, report)
			continue
		}
		if reason != "" {
			s.park(info, reason)
			report.Skipped = reason
			report.Parked = true
			reports = append(reports, report)
			continue
		}

		outcome, err := s.execute(ctx, info, "complete_settlement", models.TransactionTypeCompleteSettlement)
		if err != nil {
			return reports, err
		}
		outcome = s.settle(ctx, address, outcome)
		if errors.Is(outcome.Err, ledger.ErrNoWinners) {
			s.park(info, outcome.Message)
			report.Parked = true
		}
		report.Outcome = outcome
		reports = append(reports, report)
	}
	return reports, nil
}

// unbacked explains why a pending settlement cannot pay anybody, or returns
// an empty string when complete_settlement can succeed.
func (s *drawService) unbacked(ctx context.Context, info *PoolInfo) (string, error) {
	if info.ParticipantCount == 0 {
		return "pool has no participants", nil
	}
	if info.PendingOutcome == "" {
		return "", nil
	}
	values, err := s.views.Fresh(ctx, ledger.ModulePool, "get_outcome_tickets", info.Address, info.PendingOutcome)
	if err != nil {
		return "", err
	}
	tickets, err := u64At(values, 0)
	if err != nil {
		return "", err
	}
	if tickets == 0 {
		return fmt.Sprintf("no participant backed %q; resolve with another outcome", info.PendingOutcome), nil
	}
	return "", nil
}

// park logs a stuck settlement at error level the first time it is seen with
// a given pending outcome.
func (s *drawService) park(info *PoolInfo, reason string) {
	s.mu.Lock()
	previous, seen := s.parked[info.Address]
	s.parked[info.Address] = info.PendingOutcome
	s.mu.Unlock()
	if seen && previous == info.PendingOutcome {
		return
	}
	s.logger.Error("settlement parked until resolved with a backed outcome",
		zap.String("pool", info.Address),
		zap.String("pending_outcome", info.PendingOutcome),
		zap.String("kind", string(ErrorKindInvariant)),
		zap.String("reason", reason),
	)
}

func (s *drawService) forgetParked(pending []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for address := range s.parked {
		if !slices.Contains(pending, address) {
			delete(s.parked, address)
		}
	}
}

// settle resumes a draw that stopped after its unstake checkpoint committed.
// Outcomes the ledger rejected on its own rules are returned unchanged.
func (s *drawService) settle(ctx context.Context, address string, outcome *Outcome) *Outcome {
	if outcome.Succeeded() || !retryableSettlement(outcome) {
		return outcome
	}
	if outcome.Status == OutcomeUnknownPending && outcome.Hash != "" {
		if verified, err := s.executor.Verify(ctx, outcome.Hash); err == nil {
			if verified.Succeeded() || !retryableSettlement(verified) {
				return verified
			}
			outcome = verified
		}
	}

	backoff := s.cfg.SettleBackoff
	for attempt := 1; attempt <= s.cfg.SettleRetries; attempt++ {
		info, err := s.freshPool(ctx, address)
		if err != nil {
			return outcome
		}
		if info.Phase == ledger.PhaseResolved {
			return &Outcome{Status: OutcomeSuccess, PoolAddress: address, Hash: outcome.Hash, RecordID: outcome.RecordID}
		}
		if info.Phase != ledger.PhaseLocked || info.Settlement != string(ledger.SettlementUnstaked) {
			return outcome
		}

		s.logger.Info("resuming settlement",
			zap.String("pool", address),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return outcome
		}
		next, err := s.execute(ctx, info, "complete_settlement", models.TransactionTypeCompleteSettlement)
		if err != nil {
			return outcome
		}
		if next.Succeeded() || !retryableSettlement(next) {
			return next
		}
		outcome = next
		backoff *= 2
	}
	s.logger.Error("settlement still incomplete",
		zap.String("pool", address),
		zap.String("kind", string(outcome.Kind)),
		zap.Error(outcome.Err),
	)
	return outcome
}

func retryableSettlement(outcome *Outcome) bool {
	switch outcome.Kind {
	case ErrorKindValidation, ErrorKindAuthorization, ErrorKindInvariant, ErrorKindPrecondition:
		return false
	}
	return true
}

func (s *drawService) freshPool(ctx context.Context, pool string) (*PoolInfo, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return nil, err
	}
	return readPool(ctx, s.views.Fresh, address)
}

func (s *drawService) execute(ctx context.Context, info *PoolInfo, function string, txType models.TransactionType, extra ...any) (*Outcome, error) {
	return s.executor.Execute(ctx, TransactionRequest{
		Module:      ledger.ModuleManager,
		Function:    function,
		Arguments:   append([]any{info.Address}, extra...),
		Type:        txType,
		PoolAddress: info.Address,
		Metadata: []models.TransactionMetadata{
			{Key: MetadataPoolName, Value: info.Name},
		},
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
