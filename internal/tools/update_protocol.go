package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

type updateProtocolTool struct {
	staking services.StakingService
}

type UpdateProtocolArguments struct {
	Protocol    string  `json:"protocol" validate:"required"`
	RateBps     *uint64 `json:"rate_bps,omitempty" validate:"omitempty,lte=100000"`
	Active      *bool   `json:"active,omitempty"`
	MakeDefault bool    `json:"make_default,omitempty"`
}

type protocolUpdate struct {
	Change  string            `json:"change"`
	Outcome *services.Outcome `json:"outcome"`
}

func NewUpdateProtocolTool(staking services.StakingService) *updateProtocolTool {
	return &updateProtocolTool{staking: staking}
}

func (t *updateProtocolTool) GetTool() mcp.Tool {
	return mcp.NewTool("update_protocol",
		mcp.WithDescription("Update a yield protocol: set its rate in basis points, activate or deactivate it, or make it the default. Changes apply in that order and stop at the first failure. Admin only."),
		mcp.WithString("protocol",
			mcp.Required(),
			mcp.Description("Protocol name or numeric tag"),
			mcp.Enum("Aave", "Echelon"),
		),
		mcp.WithNumber("rate_bps",
			mcp.Description("New annual rate in basis points, e.g. 500 for 5%"),
		),
		mcp.WithBoolean("active",
			mcp.Description("Whether the protocol accepts new stakes"),
		),
		mcp.WithBoolean("make_default",
			mcp.Description("Make this protocol the default"),
		),
	)
}

func (t *updateProtocolTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args UpdateProtocolArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		id, err := ledger.ParseProtocol(args.Protocol)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		var changes []func() (string, *services.Outcome, error)
		if args.RateBps != nil {
			changes = append(changes, func() (string, *services.Outcome, error) {
				outcome, err := t.staking.UpdateRate(ctx, id, *args.RateBps)
				return fmt.Sprintf("rate_bps=%d", *args.RateBps), outcome, err
			})
		}
		if args.Active != nil {
			changes = append(changes, func() (string, *services.Outcome, error) {
				outcome, err := t.staking.SetActive(ctx, id, *args.Active)
				return fmt.Sprintf("active=%t", *args.Active), outcome, err
			})
		}
		if args.MakeDefault {
			changes = append(changes, func() (string, *services.Outcome, error) {
				outcome, err := t.staking.SetDefault(ctx, id)
				return "default", outcome, err
			})
		}
		if len(changes) == 0 {
			return mcp.NewToolResultError("Nothing to update: set rate_bps, active or make_default"), nil
		}

		updates := make([]protocolUpdate, 0, len(changes))
		for _, change := range changes {
			name, outcome, err := change()
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Error updating %s (%s): %v", id, name, err)), nil
			}
			updates = append(updates, protocolUpdate{Change: name, Outcome: outcome})
			if !outcome.Succeeded() {
				resultJSON, _ := json.Marshal(updates)
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{
						mcp.NewTextContent(fmt.Sprintf("Updating %s stopped at %s (%s): %s", id, name, outcome.Kind, outcome.Message)),
						mcp.NewTextContent(string(resultJSON)),
					},
				}, nil
			}
		}
		return jsonResult(fmt.Sprintf("Protocol %s updated", id), updates)
	}
}
