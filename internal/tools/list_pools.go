package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type listPoolsTool struct {
	pools  services.PoolService
	mirror services.MirrorService
}

type ListPoolsArguments struct {
	Status string `json:"status,omitempty" validate:"omitempty,oneof=open locked resolved"`
}

func NewListPoolsTool(pools services.PoolService, mirror services.MirrorService) *listPoolsTool {
	return &listPoolsTool{pools: pools, mirror: mirror}
}

func (t *listPoolsTool) GetTool() mcp.Tool {
	return mcp.NewTool("list_pools",
		mcp.WithDescription("List pools. Without a status every pool is read from the ledger; with a status the mirrored pool cards are listed."),
		mcp.WithString("status",
			mcp.Description("Filter by mirrored status"),
			mcp.Enum(string(models.PoolStatusOpen), string(models.PoolStatusLocked), string(models.PoolStatusResolved)),
		),
	)
}

func (t *listPoolsTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListPoolsArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		if args.Status != "" {
			pools, err := t.mirror.ListPools(ctx, models.PoolStatus(args.Status))
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Error listing pools: %v", err)), nil
			}
			return jsonResult(fmt.Sprintf("Found %d %s pools", len(pools), args.Status), pools)
		}

		pools, err := t.pools.ListPools(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error listing pools: %v", err)), nil
		}
		return jsonResult(fmt.Sprintf("Found %d pools", len(pools)), pools)
	}
}
