package ledger_test

import (
	"math"
	"testing"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePayouts(t *testing.T) {
	t.Run("equal tickets leave dust to the earliest", func(t *testing.T) {
		winners := []ledger.Participant{
			{Account: "a", Tickets: 1},
			{Account: "b", Tickets: 1},
			{Account: "c", Tickets: 1},
		}
		shares, dust, idx, err := ledger.ComputePayouts(100, winners)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), dust)
		assert.Equal(t, 0, idx)
		assert.Equal(t, uint64(34), shares[0].Amount)
		assert.Equal(t, uint64(33), shares[1].Amount)
		assert.Equal(t, uint64(33), shares[2].Amount)
	})

	t.Run("dust goes to the largest holder", func(t *testing.T) {
		winners := []ledger.Participant{
			{Account: "a", Tickets: 1},
			{Account: "b", Tickets: 2},
		}
		shares, dust, idx, err := ledger.ComputePayouts(100, winners)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), dust)
		assert.Equal(t, 1, idx)
		assert.Equal(t, uint64(33), shares[0].Amount)
		assert.Equal(t, uint64(67), shares[1].Amount)
	})

	t.Run("shares always sum to the value", func(t *testing.T) {
		winners := []ledger.Participant{
			{Account: "a", Tickets: 7},
			{Account: "b", Tickets: 13},
			{Account: "c", Tickets: 29},
			{Account: "d", Tickets: 29},
		}
		for _, value := range []uint64{0, 1, 77, 1_000_003, 18_000_000_000_000_000_000} {
			shares, dust, _, err := ledger.ComputePayouts(value, winners)
			require.NoError(t, err)
			var sum uint64
			for _, share := range shares {
				sum += share.Amount
			}
			assert.Equal(t, value, sum)
			assert.Less(t, dust, uint64(len(winners)))
		}
	})

	t.Run("no winners", func(t *testing.T) {
		_, _, _, err := ledger.ComputePayouts(100, nil)
		assert.ErrorIs(t, err, ledger.ErrNoWinners)

		_, _, _, err = ledger.ComputePayouts(100, []ledger.Participant{{Account: "a"}})
		assert.ErrorIs(t, err, ledger.ErrNoWinners)
	})
}

func TestSelectOutcome(t *testing.T) {
	outcomes := []string{"YES", "NO", "DRAW"}
	participants := []ledger.Participant{
		{Outcome: "NO", Tickets: 20},
		{Outcome: "YES", Tickets: 10},
	}

	tests := []struct {
		seed []byte
		want string
	}{
		{[]byte{0}, "YES"},
		{[]byte{9}, "YES"},
		{[]byte{10}, "NO"},
		{[]byte{29}, "NO"},
		{[]byte{30}, "YES"},
	}
	for _, tt := range tests {
		got, ok := ledger.SelectOutcome(tt.seed, outcomes, participants)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "seed %v", tt.seed)
	}

	_, ok := ledger.SelectOutcome([]byte{1}, outcomes, nil)
	assert.False(t, ok)
}

func (s *NodeTestSuite) TestResolveConcreteScenario() {
	pool := s.createPool([]string{"YES", "NO"}, unit, 100*unit)
	s.True(s.deposit(s.alice, pool, 10*unit, "YES").Success)
	s.True(s.deposit(s.bob, pool, 20*unit, "NO").Success)
	s.Equal(30*unit, s.poolTotal(pool))

	aliceBefore := s.balance(s.alice.Address())
	bobBefore := s.balance(s.bob.Address())

	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)
	s.clock.Advance(30 * 24 * time.Hour)

	result := s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES")
	s.Require().True(result.Success, result.VMStatus)

	unstaked := s.eventsOf(result, "UnstakedEvent")
	s.Require().Len(unstaked, 1)
	yield := s.u64(unstaked[0].Data["yield"])
	s.Equal(ledger.AccruedYield(30*unit, 500, 30*24*time.Hour), yield)
	s.Greater(yield, uint64(0))

	s.Equal(aliceBefore+30*unit+yield, s.balance(s.alice.Address()))
	s.Equal(bobBefore, s.balance(s.bob.Address()))
	s.Equal(ledger.PhaseResolved, s.poolPhase(pool))

	resolved := s.eventsOf(result, "PoolResolvedEvent")
	s.Require().Len(resolved, 1)
	s.Equal("YES", resolved[0].Data["winning_outcome"])
	s.Equal(30*unit+yield, s.u64(resolved[0].Data["total_value"]))
	s.Equal(s.alice.Address(), resolved[0].Data["dust_recipient"])
	s.Len(s.eventsOf(result, "PayoutEvent"), 1)

	state := s.view(ledger.ModulePool, "get_pool_state", pool)
	s.Equal("distributed", state[4])
	s.Equal("YES", state[5])
	s.Equal(30*unit+yield, s.u64(state[6]))
	s.Equal(uint64(s.clock.Now().Unix()), s.u64(s.view(ledger.ModulePool, "get_pool_info", pool)[4]))

	s.Equal(uint64(0), s.u64(s.view(ledger.ModuleStaking, "get_total_staked")[0]))
	s.Equal(yield, s.u64(s.view(ledger.ModuleStaking, "get_total_yield_generated")[0]))
}

func (s *NodeTestSuite) TestAutoResolveIsTicketWeighted() {
	tests := []struct {
		seed   byte
		winner string
	}{
		{0x00, "YES"},
		{0x0a, "NO"},
	}
	for _, tt := range tests {
		s.useNode(ledger.WithEntropy(ledger.FixedEntropy{tt.seed}))
		pool := s.createPool([]string{"YES", "NO"}, 1, 100)
		s.True(s.deposit(s.alice, pool, 10, "YES").Success)
		s.True(s.deposit(s.bob, pool, 20, "NO").Success)

		result := s.submit(s.admin, ledger.ModuleManager, "auto_resolve", pool)
		s.Require().True(result.Success, result.VMStatus)

		resolved := s.eventsOf(result, "PoolResolvedEvent")
		s.Require().Len(resolved, 1)
		s.Equal(tt.winner, resolved[0].Data["winning_outcome"])
		s.NotEmpty(resolved[0].Data["entropy"])
		s.Len(s.eventsOf(result, "PoolLockedEvent"), 1)
		s.Len(s.eventsOf(result, "StakedEvent"), 1)
		s.Len(s.eventsOf(result, "UnstakedEvent"), 1)
		s.Equal(ledger.PhaseResolved, s.poolPhase(pool))

		winner := s.alice
		if tt.winner == "NO" {
			winner = s.bob
		}
		s.Equal(1_000*unit-s.u64(s.view(ledger.ModulePool, "get_participant_info", pool, winner.Address())[0])+30, s.balance(winner.Address()))
	}
}

func (s *NodeTestSuite) TestNoWinnersKeepsPoolLocked() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 40, "YES").Success)
	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)

	nobody := s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "NO")
	s.requireCheckpointAbort(nobody, ledger.AbortNoWinners)
	s.Len(s.eventsOf(nobody, "UnstakedEvent"), 1)
	s.Require().Len(nobody.Changes, 1)
	s.Equal(pool, nobody.Changes[0].Address)
	s.Equal(ledger.PhaseLocked, s.poolPhase(pool))
	s.Equal(uint64(40), s.poolTotal(pool))

	// The unstake checkpoint survives the abort.
	state := s.view(ledger.ModulePool, "get_pool_state", pool)
	s.Equal("unstaked", state[4])
	s.Equal("NO", state[9])
	s.Equal(uint64(0), s.u64(s.view(ledger.ModulePool, "get_outcome_tickets", pool, "NO")[0]))
	s.Equal(uint64(40), s.u64(s.view(ledger.ModulePool, "get_outcome_tickets", pool, "YES")[0]))
	s.Equal(false, s.view(ledger.ModuleStaking, "get_staking_position", pool)[4])
	s.Equal([]string{pool}, s.view(ledger.ModuleManager, "get_pending_settlements")[0])

	// Resuming keeps the requested outcome.
	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "complete_settlement", pool), ledger.AbortNoWinners)

	before := s.balance(s.alice.Address())
	result := s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES")
	s.Require().True(result.Success, result.VMStatus)
	s.Empty(s.eventsOf(result, "UnstakedEvent"))
	s.Equal(before+40, s.balance(s.alice.Address()))
	s.Equal(ledger.PhaseResolved, s.poolPhase(pool))
	s.Equal([]string{}, s.view(ledger.ModuleManager, "get_pending_settlements")[0])
}

func (s *NodeTestSuite) TestCompleteSettlementRequiresCheckpoint() {
	pool := s.createPool([]string{"YES"}, 1, 100)
	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "complete_settlement", pool), ledger.AbortInvalidPhase)

	s.True(s.deposit(s.alice, pool, 10, "YES").Success)
	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)
	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "complete_settlement", pool), ledger.AbortInvalidPhase)
}

func (s *NodeTestSuite) TestAutoResolveEmptyPool() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	result := s.submit(s.admin, ledger.ModuleManager, "auto_resolve", pool)
	s.requireCheckpointAbort(result, ledger.AbortNoWinners)
	s.Len(s.eventsOf(result, "PoolLockedEvent"), 1)
	s.Equal(ledger.PhaseLocked, s.poolPhase(pool))
}

func (s *NodeTestSuite) TestResolveRejectsUnknownOutcome() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 10, "YES").Success)

	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "MAYBE"), ledger.AbortInvalidOutcome)
	s.Equal(ledger.PhaseOpen, s.poolPhase(pool))
}

func (s *NodeTestSuite) TestResolveOpenPoolSkipsStaking() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 10, "YES").Success)
	s.True(s.deposit(s.bob, pool, 15, "YES").Success)

	result := s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES")
	s.Require().True(result.Success, result.VMStatus)
	s.Empty(s.eventsOf(result, "StakedEvent"))
	s.Len(s.eventsOf(result, "PoolLockedEvent"), 1)
	s.Len(s.eventsOf(result, "PayoutEvent"), 2)
	s.Equal(1_000*unit, s.balance(s.alice.Address()))
	s.Equal(1_000*unit, s.balance(s.bob.Address()))
}

func (s *NodeTestSuite) TestDrawOperationsRequireAdmin() {
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 10, "YES").Success)

	for _, name := range []string{"lock_and_stake", "retry_stake", "auto_resolve", "complete_settlement"} {
		s.requireAbort(s.submit(s.alice, ledger.ModuleManager, name, pool), ledger.AbortNotAuthorized)
	}
	s.requireAbort(s.submit(s.bob, ledger.ModuleManager, "resolve_and_distribute", pool, "YES"), ledger.AbortNotAuthorized)
	s.Equal(ledger.PhaseOpen, s.poolPhase(pool))
	s.Equal(s.admin.Address(), s.view(ledger.ModuleManager, "get_admin")[0])
}

func (s *NodeTestSuite) TestLockDefersStakeWithoutActiveProtocol() {
	s.True(s.submit(s.admin, ledger.ModuleStaking, "set_protocol_active", ledger.U64(0), false).Success)
	s.True(s.submit(s.admin, ledger.ModuleStaking, "set_protocol_active", ledger.U64(1), false).Success)

	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 60, "YES").Success)

	result := s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool)
	s.Require().True(result.Success, result.VMStatus)
	s.Len(s.eventsOf(result, "StakeDeferredEvent"), 1)
	s.Equal(ledger.PhaseLocked, s.poolPhase(pool))
	s.Equal(true, s.view(ledger.ModulePool, "get_pool_state", pool)[3])
	s.Equal(false, s.view(ledger.ModuleStaking, "get_staking_position", pool)[4])

	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "retry_stake", pool), ledger.AbortNoActiveProtocol)

	s.True(s.submit(s.admin, ledger.ModuleStaking, "set_protocol_active", ledger.U64(0), true).Success)
	retried := s.submit(s.admin, ledger.ModuleManager, "retry_stake", pool)
	s.Require().True(retried.Success, retried.VMStatus)
	s.Len(s.eventsOf(retried, "StakedEvent"), 1)

	position := s.view(ledger.ModuleStaking, "get_staking_position", pool)
	s.Equal(uint64(60), s.u64(position[0]))
	s.Equal(ledger.ProtocolAave, ledger.ProtocolID(s.u64(position[3])))
	s.Equal(false, s.view(ledger.ModulePool, "get_pool_state", pool)[3])

	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "retry_stake", pool), ledger.AbortInvalidPhase)
}

func (s *NodeTestSuite) TestSupplyFailureDefersStake() {
	s.useNode(ledger.WithVenue(&flakyVenue{id: ledger.ProtocolEchelon, failSupply: true}))
	pool := s.createPool([]string{"YES"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 10, "YES").Success)

	result := s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool)
	s.Require().True(result.Success, result.VMStatus)
	deferred := s.eventsOf(result, "StakeDeferredEvent")
	s.Require().Len(deferred, 1)
	s.Contains(deferred[0].Data["reason"], string(ledger.AbortStakeFailed))
	s.Equal(uint64(0), s.u64(s.view(ledger.ModuleStaking, "get_total_staked")[0]))
}

func (s *NodeTestSuite) TestWithdrawFailureCommitsNothing() {
	s.useNode(ledger.WithVenue(&flakyVenue{id: ledger.ProtocolEchelon, failWithdraw: true}))
	pool := s.createPool([]string{"YES"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 10, "YES").Success)
	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)

	s.requireAbort(s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES"), ledger.AbortStakeFailed)
	s.Equal(ledger.PhaseLocked, s.poolPhase(pool))
	s.Equal("none", s.view(ledger.ModulePool, "get_pool_state", pool)[4])
	s.Equal(true, s.view(ledger.ModuleStaking, "get_staking_position", pool)[4])
	s.Equal(uint64(10), s.u64(s.view(ledger.ModuleStaking, "get_total_staked")[0]))
}

func (s *NodeTestSuite) TestVenueLossBecomesShortfall() {
	s.useNode(ledger.WithVenue(&flakyVenue{
		id:       ledger.ProtocolEchelon,
		returned: func(principal uint64) uint64 { return principal - 5 },
	}))
	pool := s.createPool([]string{"YES", "NO"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 50, "YES").Success)
	s.True(s.deposit(s.bob, pool, 50, "NO").Success)
	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)

	before := s.balance(s.alice.Address())
	result := s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES")
	s.Require().True(result.Success, result.VMStatus)
	s.Equal(before+95, s.balance(s.alice.Address()))

	state := s.view(ledger.ModulePool, "get_pool_state", pool)
	s.Equal(uint64(5), s.u64(state[7]))
	s.Equal(uint64(95), s.u64(state[6]))
}

func (s *NodeTestSuite) TestSettlementRejectsOverflowingPoolValue() {
	s.useNode(ledger.WithVenue(&flakyVenue{
		id:       ledger.ProtocolEchelon,
		returned: func(uint64) uint64 { return math.MaxUint64 },
	}))
	pool := s.createPool([]string{"YES"}, 1, 100)
	s.True(s.deposit(s.alice, pool, 10, "YES").Success)
	s.True(s.submit(s.alice, ledger.ModulePool, "add_yield", pool, ledger.U64(1)).Success)
	s.True(s.submit(s.admin, ledger.ModuleManager, "lock_and_stake", pool).Success)

	before := s.balance(s.alice.Address())
	result := s.submit(s.admin, ledger.ModuleManager, "resolve_and_distribute", pool, "YES")
	s.requireCheckpointAbort(result, ledger.AbortOverflow)
	s.Equal(ledger.PhaseLocked, s.poolPhase(pool))
	s.Equal(before, s.balance(s.alice.Address()))
}
