package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/shopspring/decimal"
)

type createPoolTool struct {
	pools services.PoolService
}

type CreatePoolArguments struct {
	Name     string   `json:"name" validate:"required"`
	Outcomes []string `json:"outcomes" validate:"required,min=2,dive,required"`
	MinEntry string   `json:"min_entry" validate:"required"`
	MaxEntry string   `json:"max_entry" validate:"required"`
	Target   string   `json:"target,omitempty"`
	Image    string   `json:"image,omitempty" validate:"omitempty,url"`
}

func NewCreatePoolTool(pools services.PoolService) *createPoolTool {
	return &createPoolTool{pools: pools}
}

func (t *createPoolTool) GetTool() mcp.Tool {
	return mcp.NewTool("create_pool",
		mcp.WithDescription("Create a no-loss lottery pool. Players deposit on one of the outcomes; deposits are staked for yield and the yield is paid to the winners."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name of the pool"),
		),
		mcp.WithArray("outcomes",
			mcp.Required(),
			mcp.Description("Two or more distinct outcomes players can pick, e.g. [\"YES\", \"NO\"]"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("min_entry",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Minimum deposit in %s, e.g. \"1\"", t.pools.Token().Symbol)),
		),
		mcp.WithString("max_entry",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Maximum deposit in %s, e.g. \"100\"", t.pools.Token().Symbol)),
		),
		mcp.WithString("target",
			mcp.Description("Prize size shown on the pool card. Display only."),
		),
		mcp.WithString("image",
			mcp.Description("Image URL shown on the pool card"),
		),
	)
}

func (t *createPoolTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreatePoolArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		minEntry, err := parseAmount("min_entry", args.MinEntry)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		maxEntry, err := parseAmount("max_entry", args.MaxEntry)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		target := decimal.Zero
		if args.Target != "" {
			if target, err = parseAmount("target", args.Target); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		outcome, err := t.pools.CreatePool(ctx, services.CreatePoolRequest{
			Name:     args.Name,
			Outcomes: args.Outcomes,
			MinEntry: minEntry,
			MaxEntry: maxEntry,
			Target:   target,
			Image:    args.Image,
		})
		return outcomeResult("create_pool", outcome, err)
	}
}
