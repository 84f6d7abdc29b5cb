package services_test

import (
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/shopspring/decimal"
)

func (s *ServicesTestSuite) protocol(id ledger.ProtocolID) services.ProtocolStats {
	stats, err := s.staking.ListProtocols(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(stats, len(ledger.KnownProtocols))
	for _, entry := range stats {
		if entry.ID == id {
			return entry
		}
	}
	s.FailNow("protocol not listed", "%s", id)
	return services.ProtocolStats{}
}

func (s *ServicesTestSuite) TestListProtocols() {
	aave := s.protocol(ledger.ProtocolAave)
	s.Equal("Aave", aave.Name)
	s.Equal(uint64(300), aave.RateBps)
	s.True(aave.Active)
	s.True(aave.Default)
	s.False(aave.Best)

	echelon := s.protocol(ledger.ProtocolEchelon)
	s.Equal(uint64(500), echelon.RateBps)
	s.False(echelon.Default)
	s.True(echelon.Best)
}

func (s *ServicesTestSuite) TestUpdateProtocols() {
	s.requireSuccess(mustOutcome(s.staking.UpdateRate(s.ctx, ledger.ProtocolAave, 900)))
	s.Equal(uint64(900), s.protocol(ledger.ProtocolAave).RateBps)
	s.True(s.protocol(ledger.ProtocolAave).Best)

	s.requireSuccess(mustOutcome(s.staking.SetActive(s.ctx, ledger.ProtocolAave, false)))
	s.False(s.protocol(ledger.ProtocolAave).Active)
	s.True(s.protocol(ledger.ProtocolEchelon).Best, "inactive protocols are never best")

	s.requireSuccess(mustOutcome(s.staking.SetDefault(s.ctx, ledger.ProtocolEchelon)))
	s.True(s.protocol(ledger.ProtocolEchelon).Default)
	s.False(s.protocol(ledger.ProtocolAave).Default)

	unknown, err := s.staking.UpdateRate(s.ctx, ledger.ProtocolID(7), 100)
	s.Require().NoError(err)
	s.ErrorIs(unknown.Err, ledger.ErrProtocolNotFound)
	s.Equal(services.ErrorKindValidation, unknown.Kind)
	s.Empty(unknown.Hash)
}

func (s *ServicesTestSuite) TestProtocolUpdatesRequireAdmin() {
	staking := services.NewStakingService(s.aliceExec, s.views)
	outcome, err := staking.UpdateRate(s.ctx, ledger.ProtocolAave, 10_000)
	s.Require().NoError(err)
	s.Equal(services.OutcomeRejected, outcome.Status)
	s.Equal(services.ErrorKindAuthorization, outcome.Kind)
	s.Equal(uint64(300), s.protocol(ledger.ProtocolAave).RateBps)
}

func (s *ServicesTestSuite) TestStakingTotals() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))

	before, err := s.staking.Totals(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), before.TotalStaked)

	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))
	after, err := s.staking.Totals(s.ctx)
	s.Require().NoError(err)
	s.Equal(10*unit, after.TotalStaked)
	s.Equal(10*unit, s.protocol(ledger.ProtocolEchelon).TotalDeposited)

	s.requireSuccess(mustOutcome(s.draws.ResolveAndDistribute(s.ctx, pool, "YES")))
	settled, err := s.staking.Totals(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), settled.TotalStaked)

	position, err := s.staking.GetPosition(s.ctx, pool)
	s.Require().NoError(err)
	s.False(position.Active)
	s.Empty(position.ProtocolName)
}

func (s *ServicesTestSuite) TestStakeAndUnstakeLockedPool() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))

	early, err := s.staking.StakeToBest(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(early.Err, ledger.ErrInvalidPhase)
	s.Empty(early.Hash)

	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))

	staked, err := s.staking.StakeToProtocol(s.ctx, pool, ledger.ProtocolAave)
	s.Require().NoError(err)
	s.ErrorIs(staked.Err, ledger.ErrInvalidPhase, "already staked with Echelon")

	unstaked, err := s.staking.Unstake(s.ctx, pool)
	s.Require().NoError(err)
	s.requireSuccess(unstaked)
	s.Equal(models.TransactionTypeUnstake, s.record(unstaked).TransactionType)
	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.True(info.StakePending)
	s.Equal(ledger.PhaseLocked, info.Phase)

	again, err := s.staking.Unstake(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(again.Err, ledger.ErrNoActivePosition)
	s.Empty(again.Hash)

	s.requireSuccess(mustOutcome(s.staking.SetActive(s.ctx, ledger.ProtocolAave, false)))
	inactive, err := s.staking.StakeToProtocol(s.ctx, pool, ledger.ProtocolAave)
	s.Require().NoError(err)
	s.ErrorIs(inactive.Err, ledger.ErrProtocolInactive)
	s.Equal(services.ErrorKindPrecondition, inactive.Kind)
	s.Empty(inactive.Hash)

	// the default is Aave, so an unnamed stake is refused too
	unnamed, err := s.staking.StakeToDefault(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(unnamed.Err, ledger.ErrProtocolInactive)

	explicit, err := s.staking.StakeToProtocol(s.ctx, pool, ledger.ProtocolEchelon)
	s.Require().NoError(err)
	s.requireSuccess(explicit)
	s.Equal(models.TransactionTypeStake, s.record(explicit).TransactionType)

	position, err := s.staking.GetPosition(s.ctx, pool)
	s.Require().NoError(err)
	s.True(position.Active)
	s.Equal(ledger.ProtocolEchelon, position.Protocol)
	s.Equal(10*unit, position.StakedAmount)

	s.requireSuccess(mustOutcome(s.draws.ResolveAndDistribute(s.ctx, pool, "YES")))
	late, err := s.staking.Unstake(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(late.Err, ledger.ErrInvalidPhase)
}

func (s *ServicesTestSuite) TestStakeAbortsReachTheLedger() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))
	s.requireSuccess(mustOutcome(s.staking.Unstake(s.ctx, pool)))
	s.requireSuccess(mustOutcome(s.staking.SetActive(s.ctx, ledger.ProtocolAave, false)))

	// submitted without the fresh reads, the ledger itself aborts
	inactive, err := s.adminExec.Execute(s.ctx, services.TransactionRequest{
		Module:      ledger.ModuleStaking,
		Function:    "stake_to_aave",
		Arguments:   []any{pool},
		Type:        models.TransactionTypeStake,
		PoolAddress: pool,
	})
	s.Require().NoError(err)
	s.Equal(services.OutcomeRejected, inactive.Status)
	s.NotEmpty(inactive.Hash)
	s.ErrorIs(inactive.Err, ledger.ErrProtocolInactive)

	unstaked, err := s.adminExec.Execute(s.ctx, services.TransactionRequest{
		Module:      ledger.ModuleStaking,
		Function:    "unstake",
		Arguments:   []any{pool},
		Type:        models.TransactionTypeUnstake,
		PoolAddress: pool,
	})
	s.Require().NoError(err)
	s.NotEmpty(unstaked.Hash)
	s.ErrorIs(unstaked.Err, ledger.ErrNoActivePosition)

	explicit, err := s.adminExec.Execute(s.ctx, services.TransactionRequest{
		Module:      ledger.ModuleStaking,
		Function:    "stake_to_echelon",
		Arguments:   []any{pool},
		Type:        models.TransactionTypeStake,
		PoolAddress: pool,
	})
	s.Require().NoError(err)
	s.requireSuccess(explicit)
	position, err := s.staking.GetPosition(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.ProtocolEchelon, position.Protocol)
}

func (s *ServicesTestSuite) TestSyncPoolCreatesMissingMirrorRow() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.Require().NoError(s.dbService.GetDB().Exec("DELETE FROM pool_create").Error)

	_, err := s.mirror.GetPool(s.ctx, pool)
	s.Require().ErrorIs(err, services.ErrMirrorNotFound)

	s.Require().NoError(s.mirrorSync.SyncPool(s.ctx, pool))
	mirrored, err := s.mirror.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal("Cup Final", mirrored.Name)
	s.Equal([]string{"YES", "NO"}, []string(mirrored.Outcomes))
	s.True(decimal.NewFromInt(10).Equal(mirrored.Total), mirrored.Total.String())
	s.Equal(s.token.Symbol, mirrored.Token)
}
