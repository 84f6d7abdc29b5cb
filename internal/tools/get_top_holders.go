package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type getTopHoldersTool struct {
	mirror services.MirrorService
}

type GetTopHoldersArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
	Limit       int    `json:"limit,omitempty" validate:"gte=0,lte=100"`
}

func NewGetTopHoldersTool(mirror services.MirrorService) *getTopHoldersTool {
	return &getTopHoldersTool{mirror: mirror}
}

func (t *getTopHoldersTool) GetTool() mcp.Tool {
	return mcp.NewTool("get_top_holders",
		mcp.WithDescription("List the accounts holding the most tickets in a pool, from the mirror. Read-only."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of holders to return (default 10, max 100)"),
		),
	)
}

func (t *getTopHoldersTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetTopHoldersArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		if !ledger.IsPoolAddress(args.PoolAddress) {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid pool address: %s", args.PoolAddress)), nil
		}
		pool, _ := ledger.NormalizeAddress(args.PoolAddress)

		holders, err := t.mirror.GetTopHolders(ctx, pool, args.Limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error reading holders: %v", err)), nil
		}
		return jsonResult(fmt.Sprintf("Found %d holders", len(holders)), holders)
	}
}
