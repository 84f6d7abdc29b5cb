package services

import (
	"context"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
)

// Hook is used to perform actions when a transaction is confirmed base on their transaction type
type Hook interface {
	// CanHandle is used to check if the hook can handle the transaction type
	CanHandle(txType models.TransactionType) bool
	// OnTransactionConfirmed is called after the ledger committed the transaction successfully
	OnTransactionConfirmed(ctx context.Context, txType models.TransactionType, result *ledger.TransactionResult, record models.TransactionRecord) error
}
