package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type withdrawTool struct {
	pools services.PoolService
}

type PoolAddressArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
}

func NewWithdrawTool(pools services.PoolService) *withdrawTool {
	return &withdrawTool{pools: pools}
}

func (t *withdrawTool) GetTool() mcp.Tool {
	return mcp.NewTool("withdraw",
		mcp.WithDescription("Withdraw the service wallet's whole deposit from a pool. Only possible while the pool is open."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
	)
}

func (t *withdrawTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args PoolAddressArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		outcome, err := t.pools.Withdraw(ctx, args.PoolAddress)
		return outcomeResult("withdraw", outcome, err)
	}
}
