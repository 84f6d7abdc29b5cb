package services_test

import (
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func (s *ServicesTestSuite) balance(account string) uint64 {
	balance, err := s.bobPools.Balance(s.ctx, account)
	s.Require().NoError(err)
	return balance
}

func (s *ServicesTestSuite) historyStatus(account, pool string) models.LotteryStatus {
	history, err := s.mirror.GetHistory(s.ctx, account)
	s.Require().NoError(err)
	for _, row := range history {
		if row.PoolID == pool {
			return row.Status
		}
	}
	s.FailNow("no history row", "account %s pool %s", account, pool)
	return ""
}

func (s *ServicesTestSuite) sequence(account string) uint64 {
	values, err := s.views.Fresh(s.ctx, ledger.ModuleAccount, "get_sequence_number", account)
	s.Require().NoError(err)
	n, err := ledger.ParseU64(values[0])
	s.Require().NoError(err)
	return n
}

func (s *ServicesTestSuite) TestLockAndStake() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(s.deposit(s.alicePools, pool, 30, "NO"))

	outcome, err := s.draws.LockAndStake(s.ctx, pool)
	s.Require().NoError(err)
	s.requireSuccess(outcome)
	s.False(outcome.Degraded)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseLocked, info.Phase)
	s.False(info.StakePending)

	position, err := s.staking.GetPosition(s.ctx, pool)
	s.Require().NoError(err)
	s.True(position.Active)
	s.Equal(ledger.ProtocolEchelon, position.Protocol, "highest rate wins")
	s.Equal(40*unit, position.StakedAmount)
	s.Equal(position.StakedAt+int64((24*time.Hour).Seconds()), position.UnlockAt)

	mirrored, err := s.mirror.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(models.PoolStatusLocked, mirrored.Status)

	again, err := s.draws.LockAndStake(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(again.Err, ledger.ErrPoolNotOpen)
	s.Empty(again.Hash, "the fresh read stops it before submission")
}

func (s *ServicesTestSuite) TestDeferredStakeAndRetry() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(mustOutcome(s.staking.SetActive(s.ctx, ledger.ProtocolAave, false)))
	s.requireSuccess(mustOutcome(s.staking.SetActive(s.ctx, ledger.ProtocolEchelon, false)))

	locked, err := s.draws.LockAndStake(s.ctx, pool)
	s.Require().NoError(err)
	s.True(locked.Succeeded())
	s.True(locked.Degraded)
	s.Equal(services.ErrorKindPartialFailure, locked.Kind)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseLocked, info.Phase)
	s.True(info.StakePending)

	stillInactive, err := s.draws.RetryStake(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(stillInactive.Err, ledger.ErrNoActiveProtocol)

	s.requireSuccess(mustOutcome(s.staking.SetActive(s.ctx, ledger.ProtocolAave, true)))
	s.requireSuccess(mustOutcome(s.draws.RetryStake(s.ctx, pool)))

	position, err := s.staking.GetPosition(s.ctx, pool)
	s.Require().NoError(err)
	s.True(position.Active)
	s.Equal(ledger.ProtocolAave, position.Protocol)
	s.Equal("Aave", position.ProtocolName)

	noop, err := s.draws.RetryStake(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(noop.Err, ledger.ErrInvalidPhase)
}

func (s *ServicesTestSuite) TestAutoResolve() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(s.deposit(s.alicePools, pool, 30, "YES"))
	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))

	outcome, err := s.draws.AutoResolve(s.ctx, pool)
	s.Require().NoError(err)
	s.requireSuccess(outcome)
	s.False(outcome.Degraded, outcome.Message)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseResolved, info.Phase)
	s.Equal("YES", info.WinningOutcome, "only YES holds tickets")
	s.Equal(string(ledger.SettlementDistributed), info.Settlement)
	s.GreaterOrEqual(info.TotalPaidOut, 40*unit)

	// principal is never lost: everything paid out lands with the two winners
	s.Equal(1_960*unit+info.TotalPaidOut, s.balance(s.bob.Address())+s.balance(s.alice.Address()))

	mirrored, err := s.mirror.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(models.PoolStatusResolved, mirrored.Status)
	s.Equal("YES", mirrored.WinningOutcome)
	s.Equal(models.LotteryStatusWon, s.historyStatus(s.bob.Address(), pool))
	s.Equal(models.LotteryStatusWon, s.historyStatus(s.alice.Address(), pool))

	again, err := s.draws.AutoResolve(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(again.Err, ledger.ErrInvalidPhase)
}

func (s *ServicesTestSuite) TestAutoResolveWithoutParticipants() {
	pool := s.createPool()
	outcome, err := s.draws.AutoResolve(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(outcome.Err, ledger.ErrNoWinners)
	s.Equal(services.ErrorKindInvariant, outcome.Kind)
	s.Empty(outcome.Hash)
}

func (s *ServicesTestSuite) TestResolveAndDistribute() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(s.deposit(s.alicePools, pool, 30, "NO"))
	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))

	invalid, err := s.draws.ResolveAndDistribute(s.ctx, pool, "MAYBE")
	s.Require().NoError(err)
	s.ErrorIs(invalid.Err, ledger.ErrInvalidOutcome)
	s.Equal(services.ErrorKindValidation, invalid.Kind)

	outcome, err := s.draws.ResolveAndDistribute(s.ctx, pool, "YES")
	s.Require().NoError(err)
	s.requireSuccess(outcome)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal("YES", info.WinningOutcome)
	s.Equal(990*unit+info.TotalPaidOut, s.balance(s.bob.Address()), "the only winner takes the whole pool")
	s.Equal(970*unit, s.balance(s.alice.Address()))

	s.Equal(models.LotteryStatusWon, s.historyStatus(s.bob.Address(), pool))
	s.Equal(models.LotteryStatusLost, s.historyStatus(s.alice.Address(), pool))

	bob, err := s.mirror.GetUser(s.ctx, s.bob.Address())
	s.Require().NoError(err)
	s.Equal(uint(1), bob.GamePlayed)
	s.Equal(uint(1), bob.Wins)
	s.Equal(100.0, bob.WinRate)
	s.True(bob.TotalWin.IsPositive())
	s.Equal(uint64(0), bob.ActiveTickets)

	alice, err := s.mirror.GetUser(s.ctx, s.alice.Address())
	s.Require().NoError(err)
	s.Equal(uint(1), alice.GamePlayed)
	s.Equal(uint(0), alice.Wins)
	s.Equal(0.0, alice.WinRate)
}

func (s *ServicesTestSuite) TestSettlementResumedAfterNoWinners() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))

	nobody, err := s.draws.ResolveAndDistribute(s.ctx, pool, "NO")
	s.Require().NoError(err)
	s.Equal(services.OutcomeRejected, nobody.Status)
	s.ErrorIs(nobody.Err, ledger.ErrNoWinners)
	s.Equal(services.ErrorKindInvariant, nobody.Kind)

	// the unstake checkpoint committed on its own
	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseLocked, info.Phase)
	s.Equal(string(ledger.SettlementUnstaked), info.Settlement)

	pending, err := s.draws.PendingSettlements(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{pool}, pending)

	core, logs := observer.New(zap.ErrorLevel)
	draws := services.NewDrawService(s.adminExec, s.views, services.DrawConfig{SettleRetries: 2, SettleBackoff: time.Millisecond}, zap.New(core))
	sequence := s.sequence(s.admin.Address())
	for range 2 {
		reports, err := draws.ResumeSettlements(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(reports, 1)
		s.Equal(pool, reports[0].PoolAddress)
		s.True(reports[0].Parked)
		s.Nil(reports[0].Outcome, "nothing is submitted for an unbacked outcome")
		s.Contains(reports[0].Skipped, `"NO"`)
	}
	s.Equal(sequence, s.sequence(s.admin.Address()))
	s.Equal(1, logs.FilterMessage("settlement parked until resolved with a backed outcome").Len())

	info, err = s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal("NO", info.PendingOutcome)

	s.requireSuccess(mustOutcome(s.draws.ResolveAndDistribute(s.ctx, pool, "YES")))
	pending, err = s.draws.PendingSettlements(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	done, err := s.draws.CompleteSettlement(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(done.Err, ledger.ErrInvalidPhase)
}

func (s *ServicesTestSuite) TestAbortedSettlementLocksMirrorPool() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))

	nobody, err := s.draws.ResolveAndDistribute(s.ctx, pool, "NO")
	s.Require().NoError(err)
	s.ErrorIs(nobody.Err, ledger.ErrNoWinners)
	s.NotEmpty(nobody.Hash)

	record := s.record(nobody)
	s.Equal(models.TransactionStatusFailed, record.Status)
	s.Equal(models.MirrorStatusSynced, record.MirrorStatus)

	// the lock in the committed checkpoint reaches the mirror and the cache
	mirrored, err := s.mirror.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(models.PoolStatusLocked, mirrored.Status)
	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseLocked, info.Phase)
}

func (s *ServicesTestSuite) TestSettlementVerifiedAfterLostConfirmation() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))

	s.client.failWaits.Store(1)
	outcome, err := s.draws.ResolveAndDistribute(s.ctx, pool, "YES")
	s.Require().NoError(err)
	s.requireSuccess(outcome)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseResolved, info.Phase)
	s.Equal(models.TransactionStatusConfirmed, s.record(outcome).Status)
	s.Equal(models.LotteryStatusWon, s.historyStatus(s.bob.Address(), pool))
}

func (s *ServicesTestSuite) TestCompleteSettlementRequiresCheckpoint() {
	pool := s.createPool()
	outcome, err := s.draws.CompleteSettlement(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(outcome.Err, ledger.ErrInvalidPhase)
	s.Empty(outcome.Hash)
}

func (s *ServicesTestSuite) TestDrawsRequireAdmin() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))
	draws := services.NewDrawService(s.aliceExec, s.views, services.DrawConfig{}, nil)

	outcome, err := draws.LockAndStake(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(services.OutcomeRejected, outcome.Status)
	s.Equal(services.ErrorKindAuthorization, outcome.Kind)
	s.ErrorIs(outcome.Err, ledger.ErrNotAuthorized)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(ledger.PhaseOpen, info.Phase)
}
