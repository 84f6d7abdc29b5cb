package tools

import (
	"fmt"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/wallet"
)

// relayDeposit makes a second player deposit into pool.
func (suite *ToolsTestSuite) relayDeposit(pool string, amount uint64, outcome string) {
	player, err := wallet.GenerateKeySigner()
	suite.Require().NoError(err)
	suite.Require().NoError(suite.container.Node.Fund(suite.ctx, player.Address(), 1_000*unit))

	function := ledger.FunctionID("0x5afe", ledger.ModulePool, "deposit")
	signed, err := wallet.Sign(player, wallet.NewPayload("", function, 0, []any{pool, ledger.U64(amount), outcome}, time.Minute))
	suite.Require().NoError(err)
	result, err := suite.container.Executor.Relay(suite.ctx, signed, nil)
	suite.Require().NoError(err)
	suite.Require().True(result.Succeeded(), result.Message)
}

func (suite *ToolsTestSuite) TestPoolActionTools() {
	tests := []struct {
		tool mcpTool
		name string
	}{
		{NewLockAndStakeTool(suite.container.Draws), "lock_and_stake"},
		{NewRetryStakeTool(suite.container.Draws), "retry_stake"},
		{NewAutoResolveTool(suite.container.Draws), "auto_resolve"},
	}
	for _, tt := range tests {
		tool := tt.tool.GetTool()
		suite.Equal(tt.name, tool.Name)
		suite.Contains(tool.Description, "Admin only")
		suite.Equal([]string{"pool_address"}, tool.InputSchema.Required)
	}
}

func (suite *ToolsTestSuite) TestDrawLifecycle() {
	pool := suite.createPool()
	suite.Require().False(suite.deposit(pool, "10", "YES").IsError)
	suite.relayDeposit(pool, 5*unit, "NO")

	lock := NewLockAndStakeTool(suite.container.Draws)
	result := suite.call(lock, map[string]any{"pool_address": pool})
	suite.False(result.IsError, suite.text(result, 0))
	suite.Contains(suite.text(result, 0), "lock_and_stake succeeded")

	result = suite.call(lock, map[string]any{"pool_address": pool})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "lock_and_stake rejected (precondition)")

	// nothing deferred, so there is nothing to retry
	result = suite.call(NewRetryStakeTool(suite.container.Draws), map[string]any{"pool_address": pool})
	suite.True(result.IsError)

	info := suite.call(NewGetPoolInfoTool(suite.container.Pools, suite.container.Staking, suite.container.Mirror), map[string]any{"pool_address": pool})
	var poolInfo GetPoolInfoResult
	suite.decode(info, &poolInfo)
	suite.Require().NotNil(poolInfo.Staking)
	suite.Equal(15*unit, poolInfo.Staking.StakedAmount)
	suite.Equal(models.PoolStatusLocked, poolInfo.Mirror.Status)

	resolve := NewResolveAndDistributeTool(suite.container.Draws)
	result = suite.call(resolve, map[string]any{"pool_address": pool, "outcome": "MAYBE"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "rejected (validation)")

	result = suite.call(resolve, map[string]any{"pool_address": pool, "outcome": "YES"})
	suite.False(result.IsError, suite.text(result, 0))
	var outcome services.Outcome
	suite.decode(result, &outcome)
	suite.NotEmpty(outcome.Hash)

	info = suite.call(NewGetPoolInfoTool(suite.container.Pools, suite.container.Staking, suite.container.Mirror), map[string]any{"pool_address": pool})
	suite.decode(info, &poolInfo)
	suite.Equal("YES", poolInfo.Pool.WinningOutcome)
	suite.Nil(poolInfo.Staking)
	suite.Equal(models.PoolStatusResolved, poolInfo.Mirror.Status)

	result = suite.call(NewAutoResolveTool(suite.container.Draws), map[string]any{"pool_address": pool})
	suite.True(result.IsError)
}

func (suite *ToolsTestSuite) TestAutoResolve() {
	pool := suite.createPool()
	suite.Require().False(suite.deposit(pool, "10", "YES").IsError)
	suite.Require().False(suite.call(NewLockAndStakeTool(suite.container.Draws), map[string]any{"pool_address": pool}).IsError)

	result := suite.call(NewAutoResolveTool(suite.container.Draws), map[string]any{"pool_address": pool})
	suite.False(result.IsError, suite.text(result, 0))

	info, err := suite.container.Pools.GetPool(suite.ctx, pool)
	suite.Require().NoError(err)
	// the only outcome with players wins
	suite.Equal("YES", info.WinningOutcome)
}

func (suite *ToolsTestSuite) TestResolveWithoutWinners() {
	pool := suite.createPool()
	suite.Require().False(suite.deposit(pool, "10", "YES").IsError)
	suite.Require().False(suite.call(NewLockAndStakeTool(suite.container.Draws), map[string]any{"pool_address": pool}).IsError)

	result := suite.call(NewResolveAndDistributeTool(suite.container.Draws), map[string]any{"pool_address": pool, "outcome": "NO"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "resolve_and_distribute rejected")
}

func (suite *ToolsTestSuite) TestListProtocols() {
	tool := NewListProtocolsTool(suite.container.Staking)
	suite.Equal("list_protocols", tool.GetTool().Name)

	result := suite.call(tool, map[string]any{})
	suite.False(result.IsError)
	suite.Contains(suite.text(result, 0), "Found 2 protocols")

	var protocols ListProtocolsResult
	suite.decode(result, &protocols)
	suite.Require().Len(protocols.Protocols, 2)
	suite.Require().NotNil(protocols.Totals)
	for _, p := range protocols.Protocols {
		if p.ID == ledger.ProtocolEchelon {
			suite.True(p.Best, "highest active rate is best")
		}
		if p.ID == ledger.ProtocolAave {
			suite.True(p.Default)
		}
	}
}

func (suite *ToolsTestSuite) TestUpdateProtocol() {
	tool := NewUpdateProtocolTool(suite.container.Staking)
	suite.Equal([]string{"protocol"}, tool.GetTool().InputSchema.Required)

	result := suite.call(tool, map[string]any{"protocol": "Aave"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Nothing to update")

	result = suite.call(tool, map[string]any{"protocol": "Compound", "active": true})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Invalid arguments")

	result = suite.call(tool, map[string]any{"protocol": "Echelon", "rate_bps": 100, "active": false, "make_default": true})
	suite.False(result.IsError, suite.text(result, 0))
	var updates []protocolUpdate
	suite.decode(result, &updates)
	suite.Require().Len(updates, 3)
	suite.Equal("rate_bps=100", updates[0].Change)
	suite.Equal("active=false", updates[1].Change)
	suite.Equal("default", updates[2].Change)

	result = suite.call(tool, map[string]any{"protocol": "Aave", "rate_bps": 900})
	suite.False(result.IsError, suite.text(result, 0))
	suite.Contains(suite.text(result, 0), "Protocol Aave updated")

	protocols, err := suite.container.Staking.ListProtocols(suite.ctx)
	suite.Require().NoError(err)
	for _, p := range protocols {
		switch p.ID {
		case ledger.ProtocolAave:
			suite.Equal(uint64(900), p.RateBps)
			suite.True(p.Best)
		case ledger.ProtocolEchelon:
			suite.Equal(uint64(100), p.RateBps)
			suite.False(p.Active)
			suite.True(p.Default)
		}
	}
}

func (suite *ToolsTestSuite) TestStakePool() {
	tool := NewStakePoolTool(suite.container.Staking)
	suite.Equal([]string{"pool_address"}, tool.GetTool().InputSchema.Required)

	pool := suite.createPool()
	suite.Require().False(suite.deposit(pool, "10", "YES").IsError)

	result := suite.call(tool, map[string]any{"pool_address": pool})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "stake rejected")

	suite.Require().False(suite.call(NewLockAndStakeTool(suite.container.Draws), map[string]any{"pool_address": pool}).IsError)

	result = suite.call(tool, map[string]any{"pool_address": pool, "action": "unstake", "protocol": "Aave"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Invalid arguments")

	result = suite.call(tool, map[string]any{"pool_address": pool, "action": "unstake"})
	suite.False(result.IsError, suite.text(result, 0))
	suite.Contains(suite.text(result, 0), "unstake succeeded")

	result = suite.call(tool, map[string]any{"pool_address": pool, "action": "unstake"})
	suite.True(result.IsError)

	result = suite.call(tool, map[string]any{"pool_address": pool, "protocol": "Compound"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Invalid arguments")

	// empty protocol stakes to the default, Aave, not the best rate
	result = suite.call(tool, map[string]any{"pool_address": pool})
	suite.False(result.IsError, suite.text(result, 0))
	position, err := suite.container.Staking.GetPosition(suite.ctx, pool)
	suite.Require().NoError(err)
	suite.True(position.Active)
	suite.Equal(ledger.ProtocolAave, position.Protocol)
	suite.Equal(10*unit, position.StakedAmount)

	result = suite.call(tool, map[string]any{"pool_address": pool, "protocol": "best"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "stake rejected")
}

func (suite *ToolsTestSuite) TestGetTopHolders() {
	pool := suite.createPool()
	suite.Require().False(suite.deposit(pool, "10", "YES").IsError)
	suite.relayDeposit(pool, 20*unit, "NO")

	tool := NewGetTopHoldersTool(suite.container.Mirror)
	result := suite.call(tool, map[string]any{"pool_address": pool, "limit": 1})
	suite.False(result.IsError, suite.text(result, 0))
	suite.Contains(suite.text(result, 0), "Found 1 holders")

	var holders []models.TopHolder
	suite.decode(result, &holders)
	suite.Require().Len(holders, 1)
	suite.Equal(20*unit, holders[0].TicketCount)

	result = suite.call(tool, map[string]any{"pool_address": pool, "limit": 1000})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Invalid arguments")
}

func (suite *ToolsTestSuite) TestVerifyTransaction() {
	pool := suite.createPool()
	result := suite.deposit(pool, "10", "YES")
	suite.Require().False(result.IsError)
	var deposit services.Outcome
	suite.decode(result, &deposit)

	tool := NewVerifyTransactionTool(suite.container.Executor, suite.container.TxService)
	result = suite.call(tool, map[string]any{"hash": deposit.Hash})
	suite.False(result.IsError, suite.text(result, 0))
	var verified VerifyTransactionResult
	suite.decode(result, &verified)
	suite.Require().NotNil(verified.Outcome)
	suite.Equal(services.OutcomeSuccess, verified.Outcome.Status)
	suite.Require().NotNil(verified.Record)
	suite.Equal(models.TransactionStatusConfirmed, verified.Record.Status)

	result = suite.call(tool, map[string]any{"hash": "0x1234"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Invalid arguments")

	result = suite.call(tool, map[string]any{"hash": fmt.Sprintf("0x%064x", 77)})
	suite.False(result.IsError)
	suite.Contains(suite.text(result, 0), "not found on the ledger yet")
	suite.decode(result, &verified)
	suite.Equal(services.OutcomeUnknownPending, verified.Outcome.Status)
	suite.Nil(verified.Record)
}
