package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type depositTool struct {
	pools services.PoolService
}

type DepositArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Outcome     string `json:"outcome" validate:"required"`
}

func NewDepositTool(pools services.PoolService) *depositTool {
	return &depositTool{pools: pools}
}

func (t *depositTool) GetTool() mcp.Tool {
	return mcp.NewTool("deposit",
		mcp.WithDescription("Deposit into an open pool on one outcome. Each account deposits once per pool; the deposit is returned in full whatever the result."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
		mcp.WithString("amount",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Amount in %s within the pool's entry range, e.g. \"2.5\"", t.pools.Token().Symbol)),
		),
		mcp.WithString("outcome",
			mcp.Required(),
			mcp.Description("One of the pool's outcomes"),
		),
	)
}

func (t *depositTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args DepositArguments
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
		outcome, err := t.pools.Deposit(ctx, args.PoolAddress, amount, args.Outcome)
		return outcomeResult("deposit", outcome, err)
	}
}
