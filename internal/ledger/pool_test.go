package ledger_test

import (
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/wallet"
)

func (s *NodeTestSuite) TestCreatePool() {
	result := s.submit(s.alice, ledger.ModulePoolFactory, "create_pool", " Cup Final ", []string{"YES", "NO"}, ledger.U64(unit), ledger.U64(100*unit))
	s.Require().True(result.Success, result.VMStatus)

	created := s.eventsOf(result, "PoolCreatedEvent")
	s.Require().Len(created, 1)
	pool := created[0].Data["pool_address"].(string)
	s.True(ledger.IsPoolAddress(pool))
	s.Equal(ledger.PoolAddress(s.alice.Address(), 0), pool)

	s.Require().Len(result.Changes, 1)
	s.Equal("write_resource", result.Changes[0].Type)
	s.Equal(pool, result.Changes[0].Address)
	s.Equal(testModule+"::pool::Pool", result.Changes[0].Data["type"])

	info := s.view(ledger.ModulePool, "get_pool_info", pool)
	s.Equal("Cup Final", info[0])
	s.Equal(unit, s.u64(info[1]))
	s.Equal(100*unit, s.u64(info[2]))
	s.Equal(uint64(s.clock.Now().Unix()), s.u64(info[3]))
	s.Equal(uint64(0), s.u64(info[4]))
	s.Equal(ledger.PhaseOpen, ledger.Phase(s.u64(info[5])))
	s.Equal(uint64(0), s.u64(info[6]))

	s.Equal(uint64(0), s.u64(s.view(ledger.ModulePool, "get_participant_count", pool)[0]))
	position := s.view(ledger.ModuleStaking, "get_staking_position", pool)
	s.Equal(false, position[4])
	s.Equal([]string{"YES", "NO"}, s.view(ledger.ModulePool, "get_outcomes", pool)[0])
}

func (s *NodeTestSuite) TestCreatePoolInvalidParameters() {
	cases := []struct {
		name     string
		title    string
		outcomes []string
		min, max uint64
	}{
		{"empty name", "  ", []string{"YES"}, 1, 10},
		{"no outcomes", "Pool", []string{}, 1, 10},
		{"blank outcome", "Pool", []string{"YES", " "}, 1, 10},
		{"duplicate outcome", "Pool", []string{"YES", "YES"}, 1, 10},
		{"zero min", "Pool", []string{"YES"}, 0, 10},
		{"zero max", "Pool", []string{"YES"}, 1, 0},
		{"min above max", "Pool", []string{"YES"}, 11, 10},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			before := s.u64(s.view(ledger.ModulePoolFactory, "get_pool_count")[0])
			result := s.submit(s.alice, ledger.ModulePoolFactory, "create_pool", tc.title, tc.outcomes, ledger.U64(tc.min), ledger.U64(tc.max))
			s.requireAbort(result, ledger.AbortInvalidParams)
			s.Empty(result.Changes)
			s.Equal(before, s.u64(s.view(ledger.ModulePoolFactory, "get_pool_count")[0]))
		})
	}
}

func (s *NodeTestSuite) TestDepositBounds() {
	pool := s.createPool([]string{"YES", "NO"}, 10, 100)

	s.requireAbort(s.deposit(s.alice, pool, 9, "YES"), ledger.AbortAmountOutOfRange)
	s.requireAbort(s.deposit(s.alice, pool, 101, "YES"), ledger.AbortAmountOutOfRange)
	s.Equal(uint64(0), s.poolTotal(pool))

	s.True(s.deposit(s.alice, pool, 10, "YES").Success)
	s.True(s.deposit(s.bob, pool, 100, "NO").Success)
	s.Equal(uint64(110), s.poolTotal(pool))

	info := s.view(ledger.ModulePool, "get_participant_info", pool, s.bob.Address())
	s.Equal(uint64(100), s.u64(info[0]))
	s.Equal("NO", info[1])
	s.Equal(ledger.TicketsFor(100), s.u64(info[2]))
}

func (s *NodeTestSuite) TestDepositPreconditionOrder() {
	pool := s.createPool([]string{"YES", "NO"}, 10, 100)
	s.True(s.deposit(s.alice, pool, 50, "YES").Success)

	// Unknown outcome wins over an out-of-range amount.
	s.requireAbort(s.deposit(s.bob, pool, 1, "MAYBE"), ledger.AbortInvalidOutcome)
	// Existing position wins over an out-of-range amount.
	s.requireAbort(s.deposit(s.alice, pool, 1, "NO"), ledger.AbortAlreadyDeposited)

	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)
	// Closed pool wins over everything.
	s.requireAbort(s.deposit(s.bob, pool, 1, "MAYBE"), ledger.AbortPoolNotOpen)
}

func (s *NodeTestSuite) TestSinglePositionInvariant() {
	pool := s.createPool([]string{"YES", "NO"}, 10, 100)
	s.True(s.deposit(s.alice, pool, 40, "YES").Success)

	result := s.deposit(s.alice, pool, 40, "YES")
	s.requireAbort(result, ledger.AbortAlreadyDeposited)
	s.Equal(uint64(40), s.poolTotal(pool))
	s.Equal(uint64(1), s.u64(s.view(ledger.ModulePool, "get_participant_count", pool)[0]))
}

func (s *NodeTestSuite) TestDepositWithdrawAccounting() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 1_000)
	s.True(s.deposit(s.bob, pool, 7, "NO").Success)
	before := s.poolTotal(pool)
	balance := s.balance(s.alice.Address())

	s.True(s.deposit(s.alice, pool, 100, "YES").Success)
	s.Equal(before+100, s.poolTotal(pool))
	s.Equal(balance-100, s.balance(s.alice.Address()))

	result := s.submit(s.alice, ledger.ModulePool, "withdraw", pool)
	s.Require().True(result.Success, result.VMStatus)
	s.Len(s.eventsOf(result, "WithdrawEvent"), 1)
	s.Equal(before, s.poolTotal(pool))
	s.Equal(balance, s.balance(s.alice.Address()))

	info := s.view(ledger.ModulePool, "get_participant_info", pool, s.alice.Address())
	s.Equal(uint64(0), s.u64(info[0]))

	// Withdrawing frees the slot for a new deposit.
	s.True(s.deposit(s.alice, pool, 5, "NO").Success)
	s.Equal(before+5, s.poolTotal(pool))
}

func (s *NodeTestSuite) TestWithdrawPreconditions() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.requireAbort(s.submit(s.alice, ledger.ModulePool, "withdraw", pool), ledger.AbortNotAParticipant)

	s.True(s.deposit(s.alice, pool, 50, "YES").Success)
	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)
	s.requireAbort(s.submit(s.alice, ledger.ModulePool, "withdraw", pool), ledger.AbortPoolLocked)
	s.Equal(uint64(50), s.poolTotal(pool))
}

func (s *NodeTestSuite) TestDepositInsufficientBalance() {
	poor, err := wallet.GenerateKeySigner()
	s.Require().NoError(err)
	s.Require().NoError(s.node.Fund(s.ctx, poor.Address(), 5))

	pool := s.createPool([]string{"YES"}, 1, 100)
	s.requireAbort(s.deposit(poor, pool, 10, "YES"), ledger.AbortInsufficientBalance)
	s.Equal(uint64(5), s.balance(poor.Address()))
}

func (s *NodeTestSuite) TestDepositUnknownPool() {
	missing := ledger.PoolAddress(s.bob.Address(), 99)
	s.requireAbort(s.deposit(s.alice, missing, 10, "YES"), ledger.AbortPoolNotFound)
	_, err := s.node.View(s.ctx, ledger.ViewRequest{
		Function:  ledger.FunctionID(testModule, ledger.ModulePool, "get_pool_info"),
		Arguments: []any{missing},
	})
	s.ErrorIs(err, ledger.ErrPoolNotFound)
}

func (s *NodeTestSuite) TestPhaseMonotonicity() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 30, "YES").Success)

	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)
	s.Equal(ledger.PhaseLocked, s.poolPhase(pool))
	s.requireAbort(s.deposit(s.bob, pool, 10, "NO"), ledger.AbortPoolNotOpen)
	s.requireAbort(s.submit(s.alice, ledger.ModulePool, "withdraw", pool), ledger.AbortPoolLocked)
	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool), ledger.AbortPoolNotOpen)
	s.Equal(uint64(30), s.poolTotal(pool))

	s.True(s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES").Success)
	s.Equal(ledger.PhaseResolved, s.poolPhase(pool))
	s.requireAbort(s.deposit(s.bob, pool, 10, "NO"), ledger.AbortPoolNotOpen)
	s.requireAbort(s.submit(s.alice, ledger.ModulePool, "withdraw", pool), ledger.AbortPoolLocked)
	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "auto_resolve", pool), ledger.AbortInvalidPhase)
	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES"), ledger.AbortInvalidPhase)
	s.requireAbort(s.submit(s.bob, ledger.ModulePool, "add_yield", pool, ledger.U64(5)), ledger.AbortInvalidPhase)
	s.Equal(uint64(30), s.poolTotal(pool))
}

func (s *NodeTestSuite) TestAddYieldIncreasesPrize() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 30, "YES").Success)
	s.requireAbort(s.submit(s.bob, ledger.ModulePool, "add_yield", pool, ledger.U64(0)), ledger.AbortInvalidParams)

	result := s.submit(s.bob, ledger.ModulePool, "add_yield", pool, ledger.U64(12))
	s.Require().True(result.Success, result.VMStatus)

	state := s.view(ledger.ModulePool, "get_pool_state", pool)
	s.Equal(uint64(12), s.u64(state[2]))

	before := s.balance(s.alice.Address())
	s.True(s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES").Success)
	s.Equal(before+42, s.balance(s.alice.Address()))
}

func (s *NodeTestSuite) TestTransfer() {
	result := s.submit(s.alice, ledger.ModuleAccount, "transfer", s.bob.Address(), ledger.U64(25))
	s.Require().True(result.Success, result.VMStatus)
	s.Equal(1_000*unit-25, s.balance(s.alice.Address()))
	s.Equal(1_000*unit+25, s.balance(s.bob.Address()))

	s.requireAbort(s.submit(s.alice, ledger.ModuleAccount, "transfer", s.bob.Address(), ledger.U64(10_000*unit)), ledger.AbortInsufficientBalance)
}

func (s *NodeTestSuite) TestPoolsListedInCreationOrder() {
	first := s.createPool([]string{"A"}, 1, 2)
	s.clock.Advance(time.Second)
	second := s.createPool([]string{"B"}, 1, 2)

	pools := s.view(ledger.ModulePoolFactory, "get_all_pools")[0].([]string)
	s.Equal([]string{first, second}, pools)
}
