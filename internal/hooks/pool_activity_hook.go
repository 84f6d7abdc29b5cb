package hooks

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

// PoolActivityHook mirrors deposits, withdrawals and locks of a pool.
type PoolActivityHook struct {
	mirror services.MirrorService
	token  models.Token
}

// CanHandle implements Hook.
func (h *PoolActivityHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypeDeposit ||
		txType == models.TransactionTypeWithdraw ||
		txType == models.TransactionTypeLockAndStake
}

// OnTransactionConfirmed implements Hook.
func (h *PoolActivityHook) OnTransactionConfirmed(ctx context.Context, txType models.TransactionType, result *ledger.TransactionResult, record models.TransactionRecord) error {
	switch txType {
	case models.TransactionTypeDeposit:
		return h.onDeposit(ctx, result, record)
	case models.TransactionTypeWithdraw:
		return h.onWithdraw(ctx, result)
	case models.TransactionTypeLockAndStake:
		return h.mirror.UpdatePool(ctx, record.PoolAddress, map[string]any{"status": models.PoolStatusLocked})
	}
	return fmt.Errorf("unsupported transaction type %s", txType)
}

func (h *PoolActivityHook) onDeposit(ctx context.Context, result *ledger.TransactionResult, record models.TransactionRecord) error {
	event, err := findEvent(result, "DepositEvent")
	if err != nil {
		return err
	}
	pool := stringField(event, "pool_address")
	account := stringField(event, "account")
	amount, err := amountField(event, "amount", h.token)
	if err != nil {
		return err
	}
	total, err := amountField(event, "total", h.token)
	if err != nil {
		return err
	}
	tickets, err := u64Field(event, "tickets")
	if err != nil {
		return err
	}

	if err := h.mirror.UpdatePool(ctx, pool, map[string]any{"total": total}); err != nil {
		return fmt.Errorf("failed to update pool total: %w", err)
	}
	if err := h.mirror.RecordChart(ctx, &models.ChartData{
		PoolID:          pool,
		Account:         account,
		Action:          models.ChartActionBuy,
		Amount:          amount,
		TransactionHash: result.Hash,
		CreatedAt:       resultTime(result),
	}); err != nil {
		return err
	}
	if err := h.mirror.SetHolderTickets(ctx, pool, account, tickets); err != nil {
		return err
	}
	if _, err := h.mirror.EnsureUser(ctx, account); err != nil {
		return err
	}

	name := record.MetadataValue(services.MetadataPoolName)
	if name == "" {
		name = pool
	}
	symbol := record.MetadataValue(services.MetadataToken)
	if symbol == "" {
		symbol = h.token.Symbol
	}
	if err := h.mirror.RecordHistory(ctx, &models.LotteryHistory{
		UserAddress:     account,
		LotteryName:     name,
		PoolID:          pool,
		PlayedAt:        resultTime(result),
		Count:           tickets,
		Outcome:         stringField(event, "outcome"),
		TokenName:       symbol,
		Status:          models.LotteryStatusActive,
		TransactionHash: result.Hash,
	}); err != nil {
		return err
	}
	return h.mirror.RefreshActiveTickets(ctx, account)
}

func (h *PoolActivityHook) onWithdraw(ctx context.Context, result *ledger.TransactionResult) error {
	event, err := findEvent(result, "WithdrawEvent")
	if err != nil {
		return err
	}
	pool := stringField(event, "pool_address")
	account := stringField(event, "account")
	amount, err := amountField(event, "amount", h.token)
	if err != nil {
		return err
	}
	total, err := amountField(event, "total", h.token)
	if err != nil {
		return err
	}

	if err := h.mirror.UpdatePool(ctx, pool, map[string]any{"total": total}); err != nil {
		return fmt.Errorf("failed to update pool total: %w", err)
	}
	if err := h.mirror.RecordChart(ctx, &models.ChartData{
		PoolID:          pool,
		Account:         account,
		Action:          models.ChartActionSell,
		Amount:          amount,
		TransactionHash: result.Hash,
		CreatedAt:       resultTime(result),
	}); err != nil {
		return err
	}
	if err := h.mirror.SetHolderTickets(ctx, pool, account, 0); err != nil {
		return err
	}
	if err := h.mirror.MarkWithdrawn(ctx, pool, account); err != nil {
		return err
	}
	return h.mirror.RefreshActiveTickets(ctx, account)
}

func NewPoolActivityHook(mirror services.MirrorService, token models.Token) services.Hook {
	return &PoolActivityHook{
		mirror: mirror,
		token:  token,
	}
}
