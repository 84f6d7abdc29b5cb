package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type listProtocolsTool struct {
	staking services.StakingService
}

type ListProtocolsResult struct {
	Protocols []services.ProtocolStats `json:"protocols"`
	Totals    *services.StakingTotals  `json:"totals"`
}

func NewListProtocolsTool(staking services.StakingService) *listProtocolsTool {
	return &listProtocolsTool{staking: staking}
}

func (t *listProtocolsTool) GetTool() mcp.Tool {
	return mcp.NewTool("list_protocols",
		mcp.WithDescription("List the yield protocols with their rates, deposits, active flag, and which one is default and best. Also returns the staking totals. Read-only."),
	)
}

func (t *listProtocolsTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		protocols, err := t.staking.ListProtocols(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error listing protocols: %v", err)), nil
		}
		totals, err := t.staking.Totals(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error reading staking totals: %v", err)), nil
		}
		return jsonResult(fmt.Sprintf("Found %d protocols", len(protocols)), ListProtocolsResult{
			Protocols: protocols,
			Totals:    totals,
		})
	}
}
