package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
	"github.com/shopspring/decimal"
)

// jsonResult returns message followed by v encoded as JSON.
func jsonResult(message string, v any) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error encoding result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message + ": "),
			mcp.NewTextContent(string(resultJSON)),
		},
	}, nil
}

// outcomeResult reports a fund-moving call. Anything but a clean success is an
// error result that still carries the full outcome.
func outcomeResult(action string, outcome *services.Outcome, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error during %s: %v", action, err)), nil
	}
	resultJSON, _ := json.Marshal(outcome)

	switch {
	case outcome.Status == services.OutcomeUnknownPending:
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("%s outcome unknown. Call verify_transaction with hash %s before retrying: ", action, outcome.Hash)),
				mcp.NewTextContent(string(resultJSON)),
			},
		}, nil
	case !outcome.Succeeded():
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("%s rejected (%s): %s", action, outcome.Kind, outcome.Message)),
				mcp.NewTextContent(string(resultJSON)),
			},
		}, nil
	case outcome.Degraded:
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("%s succeeded with warnings: %s", action, outcome.Message)),
				mcp.NewTextContent(string(resultJSON)),
			},
		}, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("%s succeeded: ", action)),
			mcp.NewTextContent(string(resultJSON)),
		},
	}, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	amount, err := utils.ParseAmount(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return amount, nil
}
