package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Share is one winner's cut of a resolved pool.
type Share struct {
	Account string
	Tickets uint64
	Amount  uint64
}

// ComputePayouts splits value across winners in proportion to their tickets,
// flooring each share. The remainder (dust) goes to the winner holding the most
// tickets, the earliest depositor on ties; winners must be in deposit order.
func ComputePayouts(value uint64, winners []Participant) (shares []Share, dust uint64, dustIndex int, err error) {
	var totalTickets uint64
	for _, w := range winners {
		totalTickets += w.Tickets
	}
	if len(winners) == 0 || totalTickets == 0 {
		return nil, 0, -1, ErrNoWinners
	}

	total := new(big.Int).SetUint64(totalTickets)
	bigValue := new(big.Int).SetUint64(value)
	shares = make([]Share, len(winners))
	var distributed uint64
	dustIndex = 0
	for i, w := range winners {
		amount := new(big.Int).Mul(bigValue, new(big.Int).SetUint64(w.Tickets))
		amount.Quo(amount, total)
		shares[i] = Share{Account: w.Account, Tickets: w.Tickets, Amount: amount.Uint64()}
		distributed += shares[i].Amount
		if w.Tickets > winners[dustIndex].Tickets {
			dustIndex = i
		}
	}
	dust = value - distributed
	shares[dustIndex].Amount += dust
	return shares, dust, dustIndex, nil
}

// SelectOutcome draws an outcome with probability proportional to the tickets
// backing it. Outcomes are walked in their configured order.
func SelectOutcome(seed []byte, outcomes []string, participants []Participant) (string, bool) {
	weights := make(map[string]uint64, len(outcomes))
	var total uint64
	for _, p := range participants {
		weights[p.Outcome] += p.Tickets
		total += p.Tickets
	}
	if total == 0 {
		return "", false
	}
	r := new(big.Int).SetBytes(seed)
	r.Mod(r, new(big.Int).SetUint64(total))
	pick := r.Uint64()
	var cumulative uint64
	for _, o := range outcomes {
		cumulative += weights[o]
		if pick < cumulative {
			return o, true
		}
	}
	return "", false
}

func (ec *execContext) lockPool(pool *Pool) {
	pool.Phase = PhaseLocked
	ec.emit(ModuleManager, "PoolLockedEvent", map[string]any{
		"pool_address": pool.Address,
		"total":        formatU64(pool.TotalDeposited),
	})
}

// stakePoolFunds stakes the pool total. A staking abort leaves the pool locked
// with StakePending set; retry_stake is the recovery entry.
func (ec *execContext) stakePoolFunds(pool *Pool) error {
	if pool.TotalDeposited == 0 {
		pool.StakePending = false
		return nil
	}
	if _, err := ec.stakeToBest(pool, pool.TotalDeposited); err != nil {
		var abortErr *AbortError
		if !errors.As(err, &abortErr) {
			return err
		}
		pool.StakePending = true
		ec.emit(ModuleManager, "StakeDeferredEvent", map[string]any{
			"pool_address": pool.Address,
			"amount":       formatU64(pool.TotalDeposited),
			"reason":       abortErr.Error(),
		})
		ec.node.logger.Warn("pool locked without stake",
			zap.String("pool", pool.Address),
			zap.String("reason", abortErr.Error()),
		)
		return nil
	}
	pool.StakePending = false
	return nil
}

func (n *Node) lockAndStake(ec *execContext, args arguments) error {
	pool, err := ec.poolArg(args)
	if err != nil {
		return err
	}
	if pool.Phase != PhaseOpen {
		return abort(AbortPoolNotOpen, "pool is %s", pool.Phase)
	}
	ec.lockPool(pool)
	if err := ec.stakePoolFunds(pool); err != nil {
		return err
	}
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.writePool(pool)
	return nil
}

func (n *Node) retryStake(ec *execContext, args arguments) error {
	pool, err := ec.poolArg(args)
	if err != nil {
		return err
	}
	if pool.Phase != PhaseLocked || !pool.StakePending || pool.Settlement != SettlementNone {
		return abort(AbortInvalidPhase, "pool has no deferred stake")
	}
	if _, err := ec.stakeToBest(pool, pool.TotalDeposited); err != nil {
		return err
	}
	pool.StakePending = false
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.writePool(pool)
	return nil
}

// releaseStake brings a locked pool's funds back into custody and marks the
// settlement checkpoint. It is a no-op once the checkpoint is reached.
func (ec *execContext) releaseStake(pool *Pool) error {
	if pool.Settlement != SettlementNone {
		return nil
	}
	position, err := findPosition(ec.tx, pool.Address)
	if err != nil {
		return err
	}
	if position != nil {
		if _, _, err := ec.unstake(pool); err != nil {
			return err
		}
	}
	pool.StakePending = false
	pool.Settlement = SettlementUnstaked
	return nil
}

func (n *Node) prepareAutoResolve(ec *execContext, args arguments) error {
	pool, err := ec.poolArg(args)
	if err != nil {
		return err
	}
	if pool.Phase == PhaseResolved {
		return abort(AbortInvalidPhase, "pool is resolved")
	}
	if pool.Phase == PhaseOpen {
		ec.lockPool(pool)
		if err := ec.stakePoolFunds(pool); err != nil {
			return err
		}
	}
	if err := ec.releaseStake(pool); err != nil {
		return err
	}
	pool.PendingOutcome = ""
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.writePool(pool)
	return nil
}

func (n *Node) prepareResolve(ec *execContext, args arguments) error {
	if err := args.count(2); err != nil {
		return err
	}
	pool, err := ec.poolArg(args[:1])
	if err != nil {
		return err
	}
	outcome, err := args.string(1)
	if err != nil {
		return err
	}
	if pool.Phase == PhaseResolved {
		return abort(AbortInvalidPhase, "pool is resolved")
	}
	if !pool.HasOutcome(outcome) {
		return abort(AbortInvalidOutcome, "%q is not an outcome of this pool", outcome)
	}
	if pool.Phase == PhaseOpen {
		ec.lockPool(pool)
	}
	if err := ec.releaseStake(pool); err != nil {
		return err
	}
	pool.PendingOutcome = outcome
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.writePool(pool)
	return nil
}

func (n *Node) finishSettlement(ec *execContext, args arguments) error {
	pool, err := ec.poolArg(args[:1])
	if err != nil {
		return err
	}
	return ec.distribute(pool)
}

// completeSettlement finishes a draw whose funds are already out of staking.
func (n *Node) completeSettlement(ec *execContext, args arguments) error {
	pool, err := ec.poolArg(args)
	if err != nil {
		return err
	}
	if pool.Phase != PhaseLocked || pool.Settlement != SettlementUnstaked {
		return abort(AbortInvalidPhase, "pool has no settlement in progress")
	}
	return ec.distribute(pool)
}

func (ec *execContext) distribute(pool *Pool) error {
	var participants []Participant
	if err := ec.tx.Where("pool_address = ?", pool.Address).Order("seq asc").Find(&participants).Error; err != nil {
		return err
	}

	outcome := pool.PendingOutcome
	var seed []byte
	if outcome == "" {
		seed = ec.node.entropy.Seed(ec.parentHash, pool.Address, ec.version, ec.now.Unix())
		picked, ok := SelectOutcome(seed, pool.Outcomes, participants)
		if !ok {
			return abort(AbortNoWinners, "pool has no tickets")
		}
		outcome = picked
	}

	winners := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if p.Outcome == outcome {
			winners = append(winners, p)
		}
	}
	gross, ok := addU64(pool.TotalDeposited, pool.YieldBalance)
	if !ok {
		return abort(AbortOverflow, "pool value %d + %d does not fit in u64", pool.TotalDeposited, pool.YieldBalance)
	}
	value := saturatingSub(gross, pool.Shortfall)
	shares, dust, dustIndex, err := ComputePayouts(value, winners)
	if err != nil {
		return abort(AbortNoWinners, "no participant backed %q", outcome)
	}

	for i, share := range shares {
		if err := credit(ec.tx, share.Account, share.Amount); err != nil {
			return err
		}
		if err := ec.tx.Model(&Participant{}).Where("id = ?", winners[i].ID).Update("payout", share.Amount).Error; err != nil {
			return err
		}
		ec.emit(ModuleManager, "PayoutEvent", map[string]any{
			"pool_address": pool.Address,
			"account":      share.Account,
			"amount":       formatU64(share.Amount),
			"tickets":      formatU64(share.Tickets),
		})
	}

	pool.Phase = PhaseResolved
	pool.Settlement = SettlementDistributed
	pool.WinningOutcome = outcome
	pool.TotalPaidOut = value
	pool.LastDrawAt = ec.now.Unix()
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}

	data := map[string]any{
		"pool_address":    pool.Address,
		"winning_outcome": outcome,
		"total_value":     formatU64(value),
		"total_deposited": formatU64(pool.TotalDeposited),
		"yield":           formatU64(pool.YieldBalance),
		"shortfall":       formatU64(pool.Shortfall),
		"dust":            formatU64(dust),
		"dust_recipient":  shares[dustIndex].Account,
		"winner_count":    formatU64(uint64(len(shares))),
	}
	if seed != nil {
		data["entropy"] = hexutil.Encode(seed)
	}
	ec.emit(ModuleManager, "PoolResolvedEvent", data)
	ec.writePool(pool)
	return nil
}

func (ec *execContext) poolArg(args arguments) (*Pool, error) {
	if err := args.count(1); err != nil {
		return nil, err
	}
	address, err := args.address(0)
	if err != nil {
		return nil, err
	}
	return ec.loadPool(address)
}

func (n *Node) viewAdmin(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	return []any{n.cfg.Admin}, nil
}

// viewPendingSettlements lists locked pools whose funds are unstaked but not yet paid out.
func (n *Node) viewPendingSettlements(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	var addresses []string
	if err := db.Model(&Pool{}).
		Where("phase = ? AND settlement = ?", PhaseLocked, SettlementUnstaked).
		Order("created_at asc").
		Pluck("address", &addresses).Error; err != nil {
		return nil, err
	}
	if addresses == nil {
		addresses = []string{}
	}
	return []any{addresses}, nil
}
