package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type resolveAndDistributeTool struct {
	draws services.DrawService
}

type ResolveAndDistributeArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
	Outcome     string `json:"outcome" validate:"required"`
}

func NewResolveAndDistributeTool(draws services.DrawService) *resolveAndDistributeTool {
	return &resolveAndDistributeTool{draws: draws}
}

func (t *resolveAndDistributeTool) GetTool() mcp.Tool {
	return mcp.NewTool("resolve_and_distribute",
		mcp.WithDescription("Unstake a locked pool and settle it on the given outcome: deposits go back to everyone and the yield is split among holders of the winning outcome by tickets. Fails with no_winners when nobody picked the outcome. Admin only."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
		mcp.WithString("outcome",
			mcp.Required(),
			mcp.Description("The winning outcome, one of the pool's outcomes"),
		),
	)
}

func (t *resolveAndDistributeTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ResolveAndDistributeArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		outcome, err := t.draws.ResolveAndDistribute(ctx, args.PoolAddress, args.Outcome)
		return outcomeResult("resolve_and_distribute", outcome, err)
	}
}
