package hooks

import (
	"context"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/shopspring/decimal"
)

// SettlementHook closes the mirror rows of a resolved pool. A settlement that
// aborted after its unstake checkpoint only marks the pool locked.
type SettlementHook struct {
	mirror services.MirrorService
	token  models.Token
}

// CanHandle implements Hook.
func (h *SettlementHook) CanHandle(txType models.TransactionType) bool {
	return txType.IsSettlement()
}

// OnTransactionConfirmed implements Hook.
func (h *SettlementHook) OnTransactionConfirmed(ctx context.Context, txType models.TransactionType, result *ledger.TransactionResult, record models.TransactionRecord) error {
	resolved, err := findEvent(result, "PoolResolvedEvent")
	if err != nil {
		if !result.Success && record.PoolAddress != "" {
			return h.mirror.UpdatePool(ctx, record.PoolAddress, map[string]any{"status": models.PoolStatusLocked})
		}
		return err
	}

	payouts := make(map[string]decimal.Decimal)
	for _, event := range result.EventsNamed("PayoutEvent") {
		amount, err := amountField(event, "amount", h.token)
		if err != nil {
			return err
		}
		account := stringField(event, "account")
		payouts[account] = payouts[account].Add(amount)
	}

	pool := stringField(resolved, "pool_address")
	if pool == "" {
		pool = record.PoolAddress
	}
	return h.mirror.SettlePool(ctx, services.PoolSettlement{
		PoolID:         pool,
		WinningOutcome: stringField(resolved, "winning_outcome"),
		Payouts:        payouts,
	})
}

func NewSettlementHook(mirror services.MirrorService, token models.Token) services.Hook {
	return &SettlementHook{
		mirror: mirror,
		token:  token,
	}
}
