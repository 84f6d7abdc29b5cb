package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type stakePoolTool struct {
	staking services.StakingService
}

type StakePoolArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
	Action      string `json:"action,omitempty" validate:"omitempty,oneof=stake unstake"`
	Protocol    string `json:"protocol,omitempty"`
}

func NewStakePoolTool(staking services.StakingService) *stakePoolTool {
	return &stakePoolTool{staking: staking}
}

func (t *stakePoolTool) GetTool() mcp.Tool {
	return mcp.NewTool("stake_pool",
		mcp.WithDescription("Move a locked pool's funds between custody and a yield protocol before its draw. stake sends them to the named protocol, the best active one, or the default; unstake brings them back with the accrued yield. Admin only."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
		mcp.WithString("action",
			mcp.Description("stake (default) or unstake"),
			mcp.Enum("stake", "unstake"),
		),
		mcp.WithString("protocol",
			mcp.Description("Target for stake: a protocol name or tag, best, or default (used when empty)"),
		),
	)
}

func (t *stakePoolTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StakePoolArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		if args.Action == "unstake" {
			if args.Protocol != "" {
				return mcp.NewToolResultError("Invalid arguments: protocol only applies to stake"), nil
			}
			outcome, err := t.staking.Unstake(ctx, args.PoolAddress)
			return outcomeResult("unstake", outcome, err)
		}

		switch target := strings.ToLower(strings.TrimSpace(args.Protocol)); target {
		case "", "default":
			outcome, err := t.staking.StakeToDefault(ctx, args.PoolAddress)
			return outcomeResult("stake", outcome, err)
		case "best":
			outcome, err := t.staking.StakeToBest(ctx, args.PoolAddress)
			return outcomeResult("stake", outcome, err)
		default:
			id, err := ledger.ParseProtocol(target)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
			}
			outcome, err := t.staking.StakeToProtocol(ctx, args.PoolAddress, id)
			return outcomeResult("stake", outcome, err)
		}
	}
}
