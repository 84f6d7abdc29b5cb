package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type addYieldTool struct {
	pools services.PoolService
}

type AddYieldArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
}

func NewAddYieldTool(pools services.PoolService) *addYieldTool {
	return &addYieldTool{pools: pools}
}

func (t *addYieldTool) GetTool() mcp.Tool {
	return mcp.NewTool("add_yield",
		mcp.WithDescription("Add yield to a pool's prize from the service wallet"),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
		mcp.WithString("amount",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Amount in %s", t.pools.Token().Symbol)),
		),
	)
}

func (t *addYieldTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args AddYieldArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		amount, err := parseAmount("amount", args.Amount)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		outcome, err := t.pools.AddYield(ctx, args.PoolAddress, amount)
		return outcomeResult("add_yield", outcome, err)
	}
}
