package hooks

import (
	"context"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/shopspring/decimal"
)

type PoolCreatedHook struct {
	mirror services.MirrorService
	token  models.Token
}

// CanHandle implements Hook.
func (h *PoolCreatedHook) CanHandle(txType models.TransactionType) bool {
	return txType == models.TransactionTypePoolCreation
}

// OnTransactionConfirmed implements Hook.
func (h *PoolCreatedHook) OnTransactionConfirmed(ctx context.Context, txType models.TransactionType, result *ledger.TransactionResult, record models.TransactionRecord) error {
	event, err := findEvent(result, "PoolCreatedEvent")
	if err != nil {
		return err
	}
	minEntry, err := amountField(event, "min_entry", h.token)
	if err != nil {
		return err
	}
	maxEntry, err := amountField(event, "max_entry", h.token)
	if err != nil {
		return err
	}

	// the target is display only, a bad value just leaves the card empty
	target, err := decimal.NewFromString(record.MetadataValue(services.MetadataTarget))
	if err != nil {
		target = decimal.Zero
	}
	symbol := record.MetadataValue(services.MetadataToken)
	if symbol == "" {
		symbol = h.token.Symbol
	}

	address := stringField(event, "pool_address")
	if address == "" {
		address = record.PoolAddress
	}
	creator := stringField(event, "creator")
	pool := &models.PoolCreate{
		ID:              address,
		Name:            stringField(event, "name"),
		Creator:         creator,
		Outcomes:        stringsField(event, "outcomes"),
		Min:             minEntry,
		Max:             maxEntry,
		Pool:            target,
		Total:           decimal.Zero,
		Token:           symbol,
		Image:           record.MetadataValue(services.MetadataImage),
		Status:          models.PoolStatusOpen,
		TransactionHash: record.Hash,
		CreatedAt:       resultTime(result),
	}
	if err := h.mirror.UpsertPool(ctx, pool); err != nil {
		return err
	}
	if creator == "" {
		return nil
	}
	_, err = h.mirror.EnsureUser(ctx, creator)
	return err
}

func NewPoolCreatedHook(mirror services.MirrorService, token models.Token) services.Hook {
	return &PoolCreatedHook{
		mirror: mirror,
		token:  token,
	}
}
