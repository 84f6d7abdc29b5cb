package services_test

import (
	"errors"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/wallet"
	"github.com/shopspring/decimal"
)

func (s *ServicesTestSuite) TestCreatePool() {
	pool := s.createPool()

	info, err := s.alicePools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal("Cup Final", info.Name)
	s.Equal([]string{"YES", "NO"}, info.Outcomes)
	s.Equal(unit, info.MinEntry)
	s.Equal(100*unit, info.MaxEntry)
	s.Equal(ledger.PhaseOpen, info.Phase)
	s.Equal("open", info.Status)
	s.Equal(s.alice.Address(), info.Creator)

	mirrored, err := s.mirror.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal("Cup Final", mirrored.Name)
	s.True(decimal.NewFromInt(500).Equal(mirrored.Pool))

	records, err := s.txService.ListTransactionRecordsByPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(models.TransactionStatusConfirmed, records[0].Status)
	s.Equal(models.MirrorStatusSynced, records[0].MirrorStatus)
	s.Equal(pool, records[0].Result["pool_address"])
}

func (s *ServicesTestSuite) TestCreatePoolValidation() {
	cases := []struct {
		name string
		req  services.CreatePoolRequest
	}{
		{"empty name", services.CreatePoolRequest{Name: " ", Outcomes: []string{"YES"}, MinEntry: decimal.NewFromInt(1), MaxEntry: decimal.NewFromInt(2)}},
		{"no outcomes", services.CreatePoolRequest{Name: "Pool", MinEntry: decimal.NewFromInt(1), MaxEntry: decimal.NewFromInt(2)}},
		{"duplicate outcome", services.CreatePoolRequest{Name: "Pool", Outcomes: []string{"YES", " YES"}, MinEntry: decimal.NewFromInt(1), MaxEntry: decimal.NewFromInt(2)}},
		{"min above max", services.CreatePoolRequest{Name: "Pool", Outcomes: []string{"YES"}, MinEntry: decimal.NewFromInt(3), MaxEntry: decimal.NewFromInt(2)}},
		{"negative amount", services.CreatePoolRequest{Name: "Pool", Outcomes: []string{"YES"}, MinEntry: decimal.NewFromInt(-1), MaxEntry: decimal.NewFromInt(2)}},
		{"zero after truncation", services.CreatePoolRequest{Name: "Pool", Outcomes: []string{"YES"}, MinEntry: decimal.RequireFromString("0.000000001"), MaxEntry: decimal.NewFromInt(2)}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			outcome, err := s.alicePools.CreatePool(s.ctx, tc.req)
			s.Require().NoError(err)
			s.Equal(services.OutcomeRejected, outcome.Status)
			s.Equal(services.ErrorKindValidation, outcome.Kind)
			s.Empty(outcome.Hash, "nothing is submitted")
		})
	}

	count, err := s.node.View(s.ctx, ledger.ViewRequest{Function: ledger.FunctionID(testModule, ledger.ModulePoolFactory, "get_pool_count")})
	s.Require().NoError(err)
	s.Equal(uint64(0), count[0])
}

func (s *ServicesTestSuite) TestDepositBoundsAndAccounting() {
	pool := s.createPool()

	low := s.deposit(s.bobPools, pool, 0, "YES")
	s.Equal(services.OutcomeRejected, low.Status)
	s.ErrorIs(low.Err, ledger.ErrAmountOutOfRange)

	high := s.deposit(s.bobPools, pool, 101, "YES")
	s.ErrorIs(high.Err, ledger.ErrAmountOutOfRange)
	s.Equal(services.ErrorKindValidation, high.Kind)

	s.requireSuccess(s.deposit(s.bobPools, pool, 1, "YES"))
	s.requireSuccess(s.deposit(s.alicePools, pool, 100, "NO"))

	info, err := s.alicePools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(101*unit, info.TotalDeposited)
	s.Equal(uint64(2), info.ParticipantCount)

	position, err := s.alicePools.GetParticipant(s.ctx, pool, s.bob.Address())
	s.Require().NoError(err)
	s.Equal(unit, position.Amount)
	s.Equal("YES", position.Outcome)
	s.Equal(ledger.TicketsFor(unit), position.Tickets)

	balance, err := s.bobPools.Balance(s.ctx, s.bob.Address())
	s.Require().NoError(err)
	s.Equal(999*unit, balance)
}

func (s *ServicesTestSuite) TestDepositPreconditions() {
	pool := s.createPool()
	s.requireSuccess(s.deposit(s.bobPools, pool, 10, "YES"))

	again := s.deposit(s.bobPools, pool, 10, "YES")
	s.ErrorIs(again.Err, ledger.ErrAlreadyDeposited)
	s.Equal(services.ErrorKindPrecondition, again.Kind)

	unknown := s.deposit(s.alicePools, pool, 10, "MAYBE")
	s.ErrorIs(unknown.Err, ledger.ErrInvalidOutcome)

	s.requireSuccess(s.deposit(s.alicePools, pool, 100, "NO"))

	s.requireSuccess(mustOutcome(s.draws.LockAndStake(s.ctx, pool)))
	closed := s.deposit(s.alicePools, pool, 10, "MAYBE")
	s.ErrorIs(closed.Err, ledger.ErrPoolNotOpen)

	withdraw, err := s.bobPools.Withdraw(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(withdraw.Err, ledger.ErrPoolLocked)

	bad, err := s.bobPools.Deposit(s.ctx, "not-a-pool", decimal.NewFromInt(1), "YES")
	s.Require().NoError(err)
	s.Equal(services.ErrorKindValidation, bad.Kind)
}

func (s *ServicesTestSuite) TestDepositInsufficientBalance() {
	pool := s.createPool()
	poor, err := wallet.GenerateKeySigner()
	s.Require().NoError(err)
	s.Require().NoError(s.node.Fund(s.ctx, poor.Address(), unit/2))
	exec := services.NewTransactionExecutor(s.client, poor, s.views, s.txService, s.hookService, services.ExecutorConfig{}, nil)
	pools := services.NewPoolService(exec, s.views, s.token)

	outcome := s.deposit(pools, pool, 1, "YES")
	s.ErrorIs(outcome.Err, ledger.ErrInsufficientBalance)
	s.Empty(outcome.Hash)
}

func (s *ServicesTestSuite) TestWithdraw() {
	pool := s.createPool()

	none, err := s.bobPools.Withdraw(s.ctx, pool)
	s.Require().NoError(err)
	s.ErrorIs(none.Err, ledger.ErrNotAParticipant)

	s.requireSuccess(s.deposit(s.bobPools, pool, 40, "YES"))
	outcome, err := s.bobPools.Withdraw(s.ctx, pool)
	s.Require().NoError(err)
	s.requireSuccess(outcome)

	balance, err := s.bobPools.Balance(s.ctx, s.bob.Address())
	s.Require().NoError(err)
	s.Equal(1_000*unit, balance)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(uint64(0), info.TotalDeposited)

	history, err := s.mirror.GetHistory(s.ctx, s.bob.Address())
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(models.LotteryStatusWithdrawn, history[0].Status)
}

func (s *ServicesTestSuite) TestAddYield() {
	pool := s.createPool()
	zero, err := s.bobPools.AddYield(s.ctx, pool, decimal.Zero)
	s.Require().NoError(err)
	s.Equal(services.ErrorKindValidation, zero.Kind)

	outcome, err := s.bobPools.AddYield(s.ctx, pool, decimal.NewFromInt(3))
	s.Require().NoError(err)
	s.requireSuccess(outcome)

	info, err := s.bobPools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(3*unit, info.YieldBalance)
}

func (s *ServicesTestSuite) TestCachedViewsInvalidatedAfterMutation() {
	pool := s.createPool()
	before, err := s.alicePools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(uint64(0), before.TotalDeposited)

	s.requireSuccess(s.deposit(s.bobPools, pool, 25, "YES"))

	after, err := s.alicePools.GetPool(s.ctx, pool)
	s.Require().NoError(err)
	s.Equal(25*unit, after.TotalDeposited)

	pools, err := s.alicePools.ListPools(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pools, 1)
	s.Equal(25*unit, pools[0].TotalDeposited)
}

func (s *ServicesTestSuite) TestListPools() {
	first := s.createPool()
	second := s.createPool()

	pools, err := s.bobPools.ListPools(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pools, 2)
	s.ElementsMatch([]string{first, second}, []string{pools[0].Address, pools[1].Address})
}

func mustOutcome(outcome *services.Outcome, err error) *services.Outcome {
	if err != nil {
		return &services.Outcome{Status: services.OutcomeRejected, Message: err.Error(), Err: err}
	}
	if outcome == nil {
		return &services.Outcome{Status: services.OutcomeRejected, Err: errors.New("nil outcome")}
	}
	return outcome
}
