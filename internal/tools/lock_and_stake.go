package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

// poolActionTool runs one admin draw step against a pool.
type poolActionTool struct {
	name        string
	description string
	run         func(ctx context.Context, pool string) (*services.Outcome, error)
}

func NewLockAndStakeTool(draws services.DrawService) *poolActionTool {
	return &poolActionTool{
		name:        "lock_and_stake",
		description: "Close an open pool to deposits and stake its funds with the best active yield protocol. When no protocol is active the pool stays locked with staking deferred; use retry_stake later. Admin only.",
		run:         draws.LockAndStake,
	}
}

func NewRetryStakeTool(draws services.DrawService) *poolActionTool {
	return &poolActionTool{
		name:        "retry_stake",
		description: "Stake a locked pool whose staking was deferred. Admin only.",
		run:         draws.RetryStake,
	}
}

func NewAutoResolveTool(draws services.DrawService) *poolActionTool {
	return &poolActionTool{
		name:        "auto_resolve",
		description: "Unstake a locked pool, draw the winning outcome from ledger entropy among outcomes with players, and pay every player. Admin only.",
		run:         draws.AutoResolve,
	}
}

func (t *poolActionTool) GetTool() mcp.Tool {
	return mcp.NewTool(t.name,
		mcp.WithDescription(t.description),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
	)
}

func (t *poolActionTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args PoolAddressArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		outcome, err := t.run(ctx, args.PoolAddress)
		return outcomeResult(t.name, outcome, err)
	}
}
