package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
)

type getParticipantInfoTool struct {
	pools  services.PoolService
	wallet string
}

type GetParticipantInfoArguments struct {
	PoolAddress string `json:"pool_address" validate:"required"`
	Account     string `json:"account,omitempty"`
}

type GetParticipantInfoResult struct {
	*services.ParticipantInfo
	AmountDisplay string `json:"amount_display"`
	Active        bool   `json:"active"`
}

// NewGetParticipantInfoTool reads participants of a pool. wallet is the account
// looked up when none is given.
func NewGetParticipantInfoTool(pools services.PoolService, wallet string) *getParticipantInfoTool {
	return &getParticipantInfoTool{pools: pools, wallet: wallet}
}

func (t *getParticipantInfoTool) GetTool() mcp.Tool {
	return mcp.NewTool("get_participant_info",
		mcp.WithDescription("Read an account's deposit, chosen outcome and tickets in a pool. Read-only."),
		mcp.WithString("pool_address",
			mcp.Required(),
			mcp.Description("Address of the pool"),
		),
		mcp.WithString("account",
			mcp.Description("Account address. Defaults to the service wallet."),
		),
	)
}

func (t *getParticipantInfoTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetParticipantInfoArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		account := t.wallet
		if args.Account != "" {
			normalized, ok := ledger.NormalizeAddress(args.Account)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid account address: %s", args.Account)), nil
			}
			account = normalized
		}

		participant, err := t.pools.GetParticipant(ctx, args.PoolAddress, account)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error reading participant: %v", err)), nil
		}
		result := GetParticipantInfoResult{
			ParticipantInfo: participant,
			AmountDisplay:   utils.FormatBaseUnits(participant.Amount, t.pools.Token().Decimals),
			Active:          participant.Active(),
		}
		message := fmt.Sprintf("%s has not deposited in this pool", account)
		if participant.Active() {
			message = fmt.Sprintf("%s holds %d tickets on %s", account, participant.Tickets, participant.Outcome)
		}
		return jsonResult(message, result)
	}
}
