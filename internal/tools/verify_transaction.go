package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type verifyTransactionTool struct {
	executor  services.TransactionExecutor
	txService services.TransactionService
}

type VerifyTransactionArguments struct {
	Hash string `json:"hash" validate:"required,startswith=0x,len=66"`
}

type VerifyTransactionResult struct {
	Outcome *services.Outcome         `json:"outcome"`
	Record  *models.TransactionRecord `json:"record,omitempty"`
}

func NewVerifyTransactionTool(executor services.TransactionExecutor, txService services.TransactionService) *verifyTransactionTool {
	return &verifyTransactionTool{executor: executor, txService: txService}
}

func (t *verifyTransactionTool) GetTool() mcp.Tool {
	return mcp.NewTool("verify_transaction",
		mcp.WithDescription("Look a transaction up on the ledger and settle its stored record. Use it on any result that ended unknown_pending before retrying, and to replay mirror updates that failed."),
		mcp.WithString("hash",
			mcp.Required(),
			mcp.Description("Transaction hash (0x followed by 64 hex characters)"),
		),
	)
}

func (t *verifyTransactionTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args VerifyTransactionArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		outcome, err := t.executor.Verify(ctx, args.Hash)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error verifying transaction: %v", err)), nil
		}
		result := VerifyTransactionResult{Outcome: outcome}
		record, err := t.txService.GetTransactionRecordByHash(ctx, args.Hash)
		switch {
		case err == nil:
			result.Record = record
		case !errors.Is(err, services.ErrRecordNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("Error reading transaction record: %v", err)), nil
		}

		var message string
		switch outcome.Status {
		case services.OutcomeSuccess:
			message = "Transaction committed"
		case services.OutcomeUnknownPending:
			message = "Transaction not found on the ledger yet. Do not resubmit before it expires"
		default:
			message = fmt.Sprintf("Transaction failed (%s): %s", outcome.Kind, outcome.Message)
		}
		return jsonResult(message, result)
	}
}
