package hooks

import (
	"fmt"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
	"github.com/shopspring/decimal"
)

// Register adds every mirror hook to the hook service.
func Register(hookService services.HookService, mirror services.MirrorService, token models.Token) error {
	for _, hook := range []services.Hook{
		NewPoolCreatedHook(mirror, token),
		NewPoolActivityHook(mirror, token),
		NewSettlementHook(mirror, token),
	} {
		if err := hookService.AddHook(hook); err != nil {
			return err
		}
	}
	return nil
}

func findEvent(result *ledger.TransactionResult, name string) (ledger.Event, error) {
	if result == nil {
		return ledger.Event{}, fmt.Errorf("no transaction result")
	}
	event, ok := result.FindEvent(name)
	if !ok {
		return ledger.Event{}, fmt.Errorf("transaction %s has no %s", result.Hash, name)
	}
	return event, nil
}

func stringField(event ledger.Event, field string) string {
	s, _ := event.Data[field].(string)
	return s
}

func u64Field(event ledger.Event, field string) (uint64, error) {
	v, ok := event.Data[field]
	if !ok {
		return 0, fmt.Errorf("%s has no %s", event.Type, field)
	}
	n, err := ledger.ParseU64(v)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", event.Type, field, err)
	}
	return n, nil
}

// amountField reads a base unit amount and converts it to display units.
func amountField(event ledger.Event, field string, token models.Token) (decimal.Decimal, error) {
	n, err := u64Field(event, field)
	if err != nil {
		return decimal.Zero, err
	}
	return utils.FromBaseUnits(n, token.Decimals), nil
}

func stringsField(event ledger.Event, field string) []string {
	switch v := event.Data[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func resultTime(result *ledger.TransactionResult) time.Time {
	if result == nil || result.Timestamp == 0 {
		return time.Now().UTC()
	}
	return time.Unix(result.Timestamp, 0).UTC()
}
