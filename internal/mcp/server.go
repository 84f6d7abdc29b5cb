package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	appserver "github.com/rxtech-lab/safebet-mcp/internal/server"
	"github.com/rxtech-lab/safebet-mcp/internal/tools"
)

type MCPServer struct {
	server    *server.MCPServer
	container *appserver.Container
}

func NewMCPServer(c *appserver.Container) *MCPServer {
	mcpServer := &MCPServer{
		container: c,
	}
	mcpServer.InitializeTools()
	return mcpServer
}

func (s *MCPServer) InitializeTools() {
	c := s.container
	srv := server.NewMCPServer(
		"SafeBet MCP Server",
		c.Config.App.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	srv.AddPrompt(mcp.NewPrompt("safebet-mcp-usage",
		mcp.WithPromptDescription("Instructions and guidance for using the no-loss lottery tools"),
		mcp.WithArgument("tool_category",
			mcp.ArgumentDescription("Category of tools to get instructions for (pool, draw, staking, mirror, or all)"),
			mcp.RequiredArgument(),
		),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		category := request.Params.Arguments["tool_category"]
		if category == "" {
			return nil, fmt.Errorf("tool_category is required")
		}

		return mcp.NewGetPromptResult(
			fmt.Sprintf("SafeBet MCP Tools - %s", category),
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleUser,
					mcp.NewTextContent(getToolInstructions(category)),
				),
			},
		), nil
	})

	wallet := c.Executor.Sender()

	// Pool Tools
	createPoolTool := tools.NewCreatePoolTool(c.Pools)
	srv.AddTool(createPoolTool.GetTool(), createPoolTool.GetHandler())

	depositTool := tools.NewDepositTool(c.Pools)
	srv.AddTool(depositTool.GetTool(), depositTool.GetHandler())

	withdrawTool := tools.NewWithdrawTool(c.Pools)
	srv.AddTool(withdrawTool.GetTool(), withdrawTool.GetHandler())

	addYieldTool := tools.NewAddYieldTool(c.Pools)
	srv.AddTool(addYieldTool.GetTool(), addYieldTool.GetHandler())

	getPoolInfoTool := tools.NewGetPoolInfoTool(c.Pools, c.Staking, c.Mirror)
	srv.AddTool(getPoolInfoTool.GetTool(), getPoolInfoTool.GetHandler())

	getParticipantInfoTool := tools.NewGetParticipantInfoTool(c.Pools, wallet)
	srv.AddTool(getParticipantInfoTool.GetTool(), getParticipantInfoTool.GetHandler())

	listPoolsTool := tools.NewListPoolsTool(c.Pools, c.Mirror)
	srv.AddTool(listPoolsTool.GetTool(), listPoolsTool.GetHandler())

	// Draw Tools
	lockAndStakeTool := tools.NewLockAndStakeTool(c.Draws)
	srv.AddTool(lockAndStakeTool.GetTool(), lockAndStakeTool.GetHandler())

	retryStakeTool := tools.NewRetryStakeTool(c.Draws)
	srv.AddTool(retryStakeTool.GetTool(), retryStakeTool.GetHandler())

	autoResolveTool := tools.NewAutoResolveTool(c.Draws)
	srv.AddTool(autoResolveTool.GetTool(), autoResolveTool.GetHandler())

	resolveTool := tools.NewResolveAndDistributeTool(c.Draws)
	srv.AddTool(resolveTool.GetTool(), resolveTool.GetHandler())

	// Staking Tools
	listProtocolsTool := tools.NewListProtocolsTool(c.Staking)
	srv.AddTool(listProtocolsTool.GetTool(), listProtocolsTool.GetHandler())

	updateProtocolTool := tools.NewUpdateProtocolTool(c.Staking)
	srv.AddTool(updateProtocolTool.GetTool(), updateProtocolTool.GetHandler())

	stakePoolTool := tools.NewStakePoolTool(c.Staking)
	srv.AddTool(stakePoolTool.GetTool(), stakePoolTool.GetHandler())

	// Mirror Tools
	topHoldersTool := tools.NewGetTopHoldersTool(c.Mirror)
	srv.AddTool(topHoldersTool.GetTool(), topHoldersTool.GetHandler())

	verifyTool := tools.NewVerifyTransactionTool(c.Executor, c.TxService)
	srv.AddTool(verifyTool.GetTool(), verifyTool.GetHandler())

	s.server = srv
}

func getToolInstructions(category string) string {
	switch category {
	case "pool":
		return `Pool Tools:
1. create_pool: create a pool with a name, two or more outcomes and min/max entry amounts
2. deposit: join an open pool with an amount and a chosen outcome (one deposit per pool)
3. withdraw: take the full deposit back while the pool is open
4. add_yield: add yield to a pool from the service wallet
5. get_pool_info / list_pools / get_participant_info: read pool state from the ledger

Amounts are display amounts of the pool token, e.g. "1.5".`

	case "draw":
		return `Draw Tools:
1. lock_and_stake: lock an open pool and stake its deposits with the best active protocol
2. retry_stake: stake a locked pool whose staking was deferred
3. auto_resolve: pick the winning outcome from on-chain entropy and pay out
4. resolve_and_distribute: pay out with an outcome chosen by the admin

A result with status "unknown_pending" may still have applied. Call verify_transaction
with its hash before trying again.`

	case "staking":
		return `Staking Tools:
1. list_protocols: rates, totals and which protocol is best and default
2. update_protocol: change a protocol's rate, active flag or make it the default
3. stake_pool: stake a locked pool to a named, best or default protocol, or unstake it before the draw`

	case "mirror":
		return `Mirror Tools:
1. get_top_holders: largest ticket holders of a pool
2. verify_transaction: settle a transaction whose outcome is unknown and repair its mirror rows`

	case "all":
		return getToolInstructions("pool") + "\n\n" +
			getToolInstructions("draw") + "\n\n" +
			getToolInstructions("staking") + "\n\n" +
			getToolInstructions("mirror")

	default:
		return `Invalid category. Available categories: pool, draw, staking, mirror, all`
	}
}

// Start serves the MCP server over stdio.
func (s *MCPServer) Start() error {
	return server.ServeStdio(s.server)
}

// GetServer returns the underlying mcp-go server
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.server
}
