package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
)

type HookService interface {
	AddHook(hook Hook) error
	CanHandle(txType models.TransactionType) bool
	OnTransactionConfirmed(ctx context.Context, txType models.TransactionType, result *ledger.TransactionResult, record models.TransactionRecord) error
}

type hookService struct {
	hooks []Hook
}

func NewHookService() HookService {
	return &hookService{
		hooks: []Hook{},
	}
}

func (h *hookService) AddHook(hook Hook) error {
	if hook == nil {
		return fmt.Errorf("hook is nil")
	}
	h.hooks = append(h.hooks, hook)
	return nil
}

func (h *hookService) CanHandle(txType models.TransactionType) bool {
	for _, hook := range h.hooks {
		if hook.CanHandle(txType) {
			return true
		}
	}
	return false
}

// OnTransactionConfirmed runs every hook that handles txType. Mirror hooks are
// independent of each other, so a failing hook does not stop the rest.
func (h *hookService) OnTransactionConfirmed(ctx context.Context, txType models.TransactionType, result *ledger.TransactionResult, record models.TransactionRecord) error {
	var errs []error
	for _, hook := range h.hooks {
		if hook.CanHandle(txType) {
			if err := hook.OnTransactionConfirmed(ctx, txType, result, record); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
