package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
)

type getPoolInfoTool struct {
	pools   services.PoolService
	staking services.StakingService
	mirror  services.MirrorService
}

type GetPoolInfoResult struct {
	Pool           *services.PoolInfo        `json:"pool"`
	TotalDeposited string                    `json:"total_deposited_display"`
	YieldBalance   string                    `json:"yield_balance_display"`
	Staking        *services.StakingPosition `json:"staking,omitempty"`
	Mirror         *models.PoolCreate        `json:"mirror,omitempty"`
}

func NewGetPoolInfoTool(pools services.PoolService, staking services.StakingService, mirror services.MirrorService) *getPoolInfoTool {
	return &getPoolInfoTool{pools: pools, staking: staking, mirror: mirror}
}

func (t *getPoolInfoTool) GetTool() mcp.Tool {
	return mcp.NewTool("get_pool_info",
		mcp.WithDescription("Read a pool's state from the ledger: phase, outcomes, entry range, deposits, yield and settlement. Includes the staking position and the mirrored card data when present. Read-only."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
	)
}

func (t *getPoolInfoTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args PoolAddressArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		info, err := t.pools.GetPool(ctx, args.PoolAddress)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error reading pool: %v", err)), nil
		}
		decimals := t.pools.Token().Decimals
		result := GetPoolInfoResult{
			Pool:           info,
			TotalDeposited: utils.FormatBaseUnits(info.TotalDeposited, decimals),
			YieldBalance:   utils.FormatBaseUnits(info.YieldBalance, decimals),
		}
		if position, err := t.staking.GetPosition(ctx, info.Address); err == nil && position.Active {
			result.Staking = position
		}
		if mirrored, err := t.mirror.GetPool(ctx, info.Address); err == nil {
			result.Mirror = mirrored
		}

		return jsonResult(fmt.Sprintf("Pool '%s' is %s", info.Name, info.Status), result)
	}
}
