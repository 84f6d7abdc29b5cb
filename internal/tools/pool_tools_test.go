package tools

import (
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

func (suite *ToolsTestSuite) TestCreatePoolGetTool() {
	tool := NewCreatePoolTool(suite.container.Pools).GetTool()

	suite.Equal("create_pool", tool.Name)
	suite.Contains(tool.Description, "no-loss lottery pool")
	suite.Contains(tool.InputSchema.Properties, "outcomes")
	suite.Contains(tool.InputSchema.Properties, "target")
	suite.Contains(tool.InputSchema.Properties, "image")
	suite.ElementsMatch([]string{"name", "outcomes", "min_entry", "max_entry"}, tool.InputSchema.Required)
}

func (suite *ToolsTestSuite) TestCreatePoolValidation() {
	tool := NewCreatePoolTool(suite.container.Pools)
	tests := []struct {
		name    string
		args    map[string]any
		message string
	}{
		{
			name:    "single_outcome",
			args:    map[string]any{"name": "Derby", "outcomes": []string{"YES"}, "min_entry": "1", "max_entry": "2"},
			message: "Invalid arguments",
		},
		{
			name:    "bad_image_url",
			args:    map[string]any{"name": "Derby", "outcomes": []string{"YES", "NO"}, "min_entry": "1", "max_entry": "2", "image": "not a url"},
			message: "Invalid arguments",
		},
		{
			name:    "bad_amount",
			args:    map[string]any{"name": "Derby", "outcomes": []string{"YES", "NO"}, "min_entry": "one", "max_entry": "2"},
			message: "invalid min_entry",
		},
		{
			name:    "min_above_max",
			args:    map[string]any{"name": "Derby", "outcomes": []string{"YES", "NO"}, "min_entry": "5", "max_entry": "2"},
			message: "create_pool rejected (validation)",
		},
		{
			name:    "duplicate_outcomes",
			args:    map[string]any{"name": "Derby", "outcomes": []string{"YES", "YES"}, "min_entry": "1", "max_entry": "2"},
			message: "create_pool rejected (validation)",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			result := suite.call(tool, tt.args)
			suite.True(result.IsError)
			suite.Contains(suite.text(result, 0), tt.message)
		})
	}
}

func (suite *ToolsTestSuite) TestCreatePoolAndReadIt() {
	pool := suite.createPool()

	result := suite.call(NewGetPoolInfoTool(suite.container.Pools, suite.container.Staking, suite.container.Mirror), map[string]any{
		"pool_address": pool,
	})
	suite.False(result.IsError)
	suite.Contains(suite.text(result, 0), "Pool 'Derby' is")

	var info GetPoolInfoResult
	suite.decode(result, &info)
	suite.Require().NotNil(info.Pool)
	suite.Equal(pool, info.Pool.Address)
	suite.Equal(uint64(1)*unit, info.Pool.MinEntry)
	suite.Equal(uint64(100)*unit, info.Pool.MaxEntry)
	suite.Equal("0", info.TotalDeposited)
	suite.Nil(info.Staking)
	suite.Require().NotNil(info.Mirror)
	suite.Equal(models.PoolStatusOpen, info.Mirror.Status)

	listed := suite.call(NewListPoolsTool(suite.container.Pools, suite.container.Mirror), map[string]any{})
	suite.False(listed.IsError)
	suite.Contains(suite.text(listed, 0), "Found 1 pools")

	byStatus := suite.call(NewListPoolsTool(suite.container.Pools, suite.container.Mirror), map[string]any{"status": "resolved"})
	suite.False(byStatus.IsError)
	suite.Contains(suite.text(byStatus, 0), "Found 0 resolved pools")

	badStatus := suite.call(NewListPoolsTool(suite.container.Pools, suite.container.Mirror), map[string]any{"status": "closed"})
	suite.True(badStatus.IsError)
}

func (suite *ToolsTestSuite) TestGetPoolInfoUnknownPool() {
	tool := NewGetPoolInfoTool(suite.container.Pools, suite.container.Staking, suite.container.Mirror)

	result := suite.call(tool, map[string]any{"pool_address": fmt.Sprintf("0x%064x", 9)})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Error reading pool")

	result = suite.call(tool, map[string]any{"pool_address": "0x1234"})
	suite.True(result.IsError)
}

func (suite *ToolsTestSuite) TestDepositAndWithdraw() {
	pool := suite.createPool()

	result := suite.deposit(pool, "2.5", "YES")
	suite.False(result.IsError, suite.text(result, 0))
	suite.Contains(suite.text(result, 0), "deposit succeeded")
	var outcome services.Outcome
	suite.decode(result, &outcome)
	suite.Equal(services.OutcomeSuccess, outcome.Status)
	suite.NotEmpty(outcome.Hash)

	participantTool := NewGetParticipantInfoTool(suite.container.Pools, suite.container.Signer.Address())
	result = suite.call(participantTool, map[string]any{"pool_address": pool})
	suite.False(result.IsError)
	suite.Contains(suite.text(result, 0), "on YES")
	var participant GetParticipantInfoResult
	suite.decode(result, &participant)
	suite.True(participant.Active)
	suite.Equal("2.5", participant.AmountDisplay)
	suite.Equal(uint64(250_000_000), participant.Tickets)

	// second deposit from the same account is refused
	result = suite.deposit(pool, "1", "NO")
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "deposit rejected (precondition)")

	result = suite.call(NewWithdrawTool(suite.container.Pools), map[string]any{"pool_address": pool})
	suite.False(result.IsError, suite.text(result, 0))

	result = suite.call(participantTool, map[string]any{"pool_address": pool})
	suite.False(result.IsError)
	suite.Contains(suite.text(result, 0), "has not deposited")

	result = suite.call(NewWithdrawTool(suite.container.Pools), map[string]any{"pool_address": pool})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "withdraw rejected")
}

func (suite *ToolsTestSuite) TestDepositRejections() {
	pool := suite.createPool()

	result := suite.deposit(pool, "500", "YES")
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "rejected (validation)")

	result = suite.deposit(pool, "5", "MAYBE")
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "rejected (validation)")

	result = suite.deposit(pool, "abc", "YES")
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "invalid amount")
}

func (suite *ToolsTestSuite) TestGetParticipantInfoAccount() {
	pool := suite.createPool()
	tool := NewGetParticipantInfoTool(suite.container.Pools, suite.container.Signer.Address())

	result := suite.call(tool, map[string]any{"pool_address": pool, "account": "bob"})
	suite.True(result.IsError)
	suite.Contains(suite.text(result, 0), "Invalid account address")

	other := "0x00000000000000000000000000000000000000bb"
	result = suite.call(tool, map[string]any{"pool_address": pool, "account": other})
	suite.False(result.IsError)
	var participant GetParticipantInfoResult
	suite.decode(result, &participant)
	suite.False(participant.Active)
	expected, _ := ledger.NormalizeAddress(other)
	suite.Equal(expected, participant.Account)
}

func (suite *ToolsTestSuite) TestAddYield() {
	pool := suite.createPool()
	tool := NewAddYieldTool(suite.container.Pools)

	result := suite.call(tool, map[string]any{"pool_address": pool, "amount": "3"})
	suite.False(result.IsError, suite.text(result, 0))

	info, err := suite.container.Pools.GetPool(suite.ctx, pool)
	suite.Require().NoError(err)
	suite.Equal(3*unit, info.YieldBalance)

	result = suite.call(tool, map[string]any{"pool_address": pool, "amount": "0"})
	suite.True(result.IsError)
}
