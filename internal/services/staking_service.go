package services

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"golang.org/x/sync/errgroup"
)

type ProtocolStats struct {
	ID             ledger.ProtocolID `json:"id"`
	Name           string            `json:"name"`
	RateBps        uint64            `json:"rate_bps"`
	TotalDeposited uint64            `json:"total_deposited"`
	Active         bool              `json:"active"`
	Default        bool              `json:"default"`
	Best           bool              `json:"best"`
}

type StakingPosition struct {
	Pool           string            `json:"pool"`
	StakedAmount   uint64            `json:"staked_amount"`
	StakedAt       int64             `json:"staked_at"`
	UnlockAt       int64             `json:"unlock_at"`
	Protocol       ledger.ProtocolID `json:"protocol"`
	ProtocolName   string            `json:"protocol_name"`
	Active         bool              `json:"active"`
	EstimatedYield uint64            `json:"estimated_yield"`
}

type StakingTotals struct {
	TotalStaked         uint64 `json:"total_staked"`
	TotalYieldGenerated uint64 `json:"total_yield_generated"`
}

type StakingService interface {
	ListProtocols(ctx context.Context) ([]ProtocolStats, error)
	GetPosition(ctx context.Context, pool string) (*StakingPosition, error)
	Totals(ctx context.Context) (*StakingTotals, error)
	UpdateRate(ctx context.Context, id ledger.ProtocolID, rateBps uint64) (*Outcome, error)
	SetActive(ctx context.Context, id ledger.ProtocolID, active bool) (*Outcome, error)
	SetDefault(ctx context.Context, id ledger.ProtocolID) (*Outcome, error)
	// StakeToBest, StakeToProtocol and StakeToDefault stake a locked pool's
	// funds by hand, typically after Unstake or a deferred stake.
	StakeToBest(ctx context.Context, pool string) (*Outcome, error)
	StakeToProtocol(ctx context.Context, pool string, id ledger.ProtocolID) (*Outcome, error)
	StakeToDefault(ctx context.Context, pool string) (*Outcome, error)
	// Unstake returns a locked pool's staked funds to custody before its draw.
	Unstake(ctx context.Context, pool string) (*Outcome, error)
}

type stakingService struct {
	executor TransactionExecutor
	views    ViewService
}

func NewStakingService(executor TransactionExecutor, views ViewService) StakingService {
	return &stakingService{executor: executor, views: views}
}

// ListProtocols reads every registry entry concurrently.
func (s *stakingService) ListProtocols(ctx context.Context) ([]ProtocolStats, error) {
	ids := ledger.KnownProtocols
	stats := make([]ProtocolStats, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			values, err := s.views.View(gctx, ledger.ModuleStaking, "get_protocol_stats", ledger.U64(uint64(id)))
			if err != nil {
				return fmt.Errorf("failed to read protocol %s: %w", id, err)
			}
			var d viewDecoder
			stats[i] = ProtocolStats{
				ID:             id,
				Name:           id.String(),
				RateBps:        d.u64(values, 0),
				TotalDeposited: d.u64(values, 1),
				Active:         d.bool(values, 2),
			}
			return d.err
		})
	}
	var defaultID uint64
	g.Go(func() error {
		values, err := s.views.View(gctx, ledger.ModuleStaking, "get_default_protocol")
		if err != nil {
			return err
		}
		defaultID, err = u64At(values, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]ledger.Protocol, len(stats))
	for i := range stats {
		stats[i].Default = uint64(stats[i].ID) == defaultID
		entries[i] = ledger.Protocol{ProtocolID: stats[i].ID, RateBps: stats[i].RateBps, Active: stats[i].Active}
	}
	if best, ok := ledger.SelectBest(entries); ok {
		for i := range stats {
			stats[i].Best = stats[i].ID == best.ProtocolID
		}
	}
	return stats, nil
}

func (s *stakingService) GetPosition(ctx context.Context, pool string) (*StakingPosition, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return nil, err
	}
	values, err := s.views.View(ctx, ledger.ModuleStaking, "get_staking_position", address)
	if err != nil {
		return nil, err
	}
	estimate, err := s.views.View(ctx, ledger.ModuleStaking, "estimate_current_yield", address)
	if err != nil {
		return nil, err
	}
	var d viewDecoder
	position := &StakingPosition{
		Pool:           address,
		StakedAmount:   d.u64(values, 0),
		StakedAt:       int64(d.u64(values, 1)),
		UnlockAt:       int64(d.u64(values, 2)),
		Protocol:       ledger.ProtocolID(d.u64(values, 3)),
		Active:         d.bool(values, 4),
		EstimatedYield: d.u64(estimate, 0),
	}
	if d.err != nil {
		return nil, fmt.Errorf("unexpected staking view for %s: %w", address, d.err)
	}
	if position.Active {
		position.ProtocolName = position.Protocol.String()
	}
	return position, nil
}

func (s *stakingService) Totals(ctx context.Context) (*StakingTotals, error) {
	staked, err := s.views.View(ctx, ledger.ModuleStaking, "get_total_staked")
	if err != nil {
		return nil, err
	}
	generated, err := s.views.View(ctx, ledger.ModuleStaking, "get_total_yield_generated")
	if err != nil {
		return nil, err
	}
	var d viewDecoder
	totals := &StakingTotals{TotalStaked: d.u64(staked, 0), TotalYieldGenerated: d.u64(generated, 0)}
	return totals, d.err
}

func (s *stakingService) UpdateRate(ctx context.Context, id ledger.ProtocolID, rateBps uint64) (*Outcome, error) {
	if !id.Valid() {
		return rejectedOutcome(fmt.Errorf("protocol %d: %w", id, ledger.ErrProtocolNotFound)), nil
	}
	return s.executor.Execute(ctx, TransactionRequest{
		Module:    ledger.ModuleStaking,
		Function:  "update_protocol_rate",
		Arguments: []any{ledger.U64(uint64(id)), ledger.U64(rateBps)},
		Type:      models.TransactionTypeProtocolUpdate,
	})
}

func (s *stakingService) SetActive(ctx context.Context, id ledger.ProtocolID, active bool) (*Outcome, error) {
	if !id.Valid() {
		return rejectedOutcome(fmt.Errorf("protocol %d: %w", id, ledger.ErrProtocolNotFound)), nil
	}
	return s.executor.Execute(ctx, TransactionRequest{
		Module:    ledger.ModuleStaking,
		Function:  "set_protocol_active",
		Arguments: []any{ledger.U64(uint64(id)), active},
		Type:      models.TransactionTypeProtocolUpdate,
	})
}

func (s *stakingService) SetDefault(ctx context.Context, id ledger.ProtocolID) (*Outcome, error) {
	if !id.Valid() {
		return rejectedOutcome(fmt.Errorf("protocol %d: %w", id, ledger.ErrProtocolNotFound)), nil
	}
	return s.executor.Execute(ctx, TransactionRequest{
		Module:    ledger.ModuleStaking,
		Function:  "set_default_protocol",
		Arguments: []any{ledger.U64(uint64(id))},
		Type:      models.TransactionTypeProtocolUpdate,
	})
}

func (s *stakingService) StakeToBest(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.stakeablePool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	return s.executePool(ctx, info, "stake_to_best_protocol", models.TransactionTypeStake)
}

func (s *stakingService) StakeToProtocol(ctx context.Context, pool string, id ledger.ProtocolID) (*Outcome, error) {
	if !id.Valid() {
		return rejectedOutcome(fmt.Errorf("protocol %d: %w", id, ledger.ErrProtocolNotFound)), nil
	}
	info, err := s.stakeablePool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	stats, err := s.views.Fresh(ctx, ledger.ModuleStaking, "get_protocol_stats", ledger.U64(uint64(id)))
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if active, err := boolAt(stats, 2); err != nil || !active {
		return rejectedOutcome(fmt.Errorf("%s: %w", id, ledger.ErrProtocolInactive)), nil
	}
	return s.executePool(ctx, info, "stake_to_protocol", models.TransactionTypeStake, ledger.U64(uint64(id)))
}

func (s *stakingService) StakeToDefault(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.stakeablePool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	return s.executePool(ctx, info, "stake_to_protocol", models.TransactionTypeStake)
}

func (s *stakingService) Unstake(ctx context.Context, pool string) (*Outcome, error) {
	info, err := s.lockedPool(ctx, pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	position, err := s.views.Fresh(ctx, ledger.ModuleStaking, "get_staking_position", info.Address)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if active, err := boolAt(position, 4); err != nil || !active {
		return rejectedOutcome(fmt.Errorf("pool %s: %w", info.Address, ledger.ErrNoActivePosition)), nil
	}
	return s.executePool(ctx, info, "unstake", models.TransactionTypeUnstake)
}

// lockedPool reads a pool that is locked and not yet settling.
func (s *stakingService) lockedPool(ctx context.Context, pool string) (*PoolInfo, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return nil, err
	}
	info, err := readPool(ctx, s.views.Fresh, address)
	if err != nil {
		return nil, err
	}
	if info.Phase != ledger.PhaseLocked || info.Settlement != string(ledger.SettlementNone) {
		return nil, fmt.Errorf("pool %s is %s with settlement %s: %w", info.Address, info.Status, info.Settlement, ledger.ErrInvalidPhase)
	}
	return info, nil
}

// stakeablePool reads a locked pool that holds funds and has no active stake.
func (s *stakingService) stakeablePool(ctx context.Context, pool string) (*PoolInfo, error) {
	info, err := s.lockedPool(ctx, pool)
	if err != nil {
		return nil, err
	}
	if info.TotalDeposited == 0 {
		return nil, fmt.Errorf("pool %s has nothing to stake: %w", info.Address, ledger.ErrInvalidPhase)
	}
	position, err := s.views.Fresh(ctx, ledger.ModuleStaking, "get_staking_position", info.Address)
	if err != nil {
		return nil, err
	}
	if active, err := boolAt(position, 4); err == nil && active {
		return nil, fmt.Errorf("pool %s is already staked: %w", info.Address, ledger.ErrInvalidPhase)
	}
	return info, nil
}

func (s *stakingService) executePool(ctx context.Context, info *PoolInfo, function string, txType models.TransactionType, extra ...any) (*Outcome, error) {
	return s.executor.Execute(ctx, TransactionRequest{
		Module:      ledger.ModuleStaking,
		Function:    function,
		Arguments:   append([]any{info.Address}, extra...),
		Type:        txType,
		PoolAddress: info.Address,
		Metadata: []models.TransactionMetadata{
			{Key: MetadataPoolName, Value: info.Name},
		},
	})
}
