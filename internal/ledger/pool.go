package ledger

import (
	"context"

	"gorm.io/gorm"
)

// TicketsFor is the ticket weight of a deposit: one ticket per base unit.
func TicketsFor(amount uint64) uint64 {
	return amount
}

func findParticipant(db *gorm.DB, pool, account string) (*Participant, error) {
	var participants []Participant
	if err := db.Where("pool_address = ? AND account = ?", pool, account).Limit(1).Find(&participants).Error; err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, nil
	}
	return &participants[0], nil
}

func (n *Node) deposit(ec *execContext, args arguments) error {
	if err := args.count(3); err != nil {
		return err
	}
	address, err := args.address(0)
	if err != nil {
		return err
	}
	amount, err := args.u64(1)
	if err != nil {
		return err
	}
	outcome, err := args.string(2)
	if err != nil {
		return err
	}

	pool, err := ec.loadPool(address)
	if err != nil {
		return err
	}
	if pool.Phase != PhaseOpen {
		return abort(AbortPoolNotOpen, "pool is %s", pool.Phase)
	}
	if !pool.HasOutcome(outcome) {
		return abort(AbortInvalidOutcome, "%q is not an outcome of this pool", outcome)
	}
	existing, err := findParticipant(ec.tx, pool.Address, ec.sender)
	if err != nil {
		return err
	}
	if existing != nil {
		return abort(AbortAlreadyDeposited, "%s already holds a position", ec.sender)
	}
	if amount < pool.MinEntry || amount > pool.MaxEntry {
		return abort(AbortAmountOutOfRange, "amount %d outside [%d, %d]", amount, pool.MinEntry, pool.MaxEntry)
	}
	if _, ok := addU64(pool.TotalDeposited, amount); !ok {
		return abort(AbortAmountOutOfRange, "pool total would overflow")
	}
	if err := debit(ec.tx, ec.sender, amount); err != nil {
		return err
	}

	participant := &Participant{
		PoolAddress: pool.Address,
		Account:     ec.sender,
		Amount:      amount,
		Outcome:     outcome,
		Tickets:     TicketsFor(amount),
		Seq:         pool.NextSeq,
		DepositedAt: ec.now.Unix(),
	}
	if err := ec.tx.Create(participant).Error; err != nil {
		return err
	}
	pool.NextSeq++
	pool.TotalDeposited += amount
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}

	ec.emit(ModulePool, "DepositEvent", map[string]any{
		"pool_address": pool.Address,
		"account":      ec.sender,
		"amount":       formatU64(amount),
		"outcome":      outcome,
		"tickets":      formatU64(participant.Tickets),
		"total":        formatU64(pool.TotalDeposited),
	})
	ec.writePool(pool)
	return nil
}

func (n *Node) withdraw(ec *execContext, args arguments) error {
	if err := args.count(1); err != nil {
		return err
	}
	address, err := args.address(0)
	if err != nil {
		return err
	}
	pool, err := ec.loadPool(address)
	if err != nil {
		return err
	}
	if pool.Phase != PhaseOpen {
		return abort(AbortPoolLocked, "pool is %s", pool.Phase)
	}
	participant, err := findParticipant(ec.tx, pool.Address, ec.sender)
	if err != nil {
		return err
	}
	if participant == nil {
		return abort(AbortNotAParticipant, "%s has no position", ec.sender)
	}

	if err := ec.tx.Delete(participant).Error; err != nil {
		return err
	}
	pool.TotalDeposited -= participant.Amount
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	if err := credit(ec.tx, ec.sender, participant.Amount); err != nil {
		return err
	}

	ec.emit(ModulePool, "WithdrawEvent", map[string]any{
		"pool_address": pool.Address,
		"account":      ec.sender,
		"amount":       formatU64(participant.Amount),
		"outcome":      participant.Outcome,
		"tickets":      formatU64(participant.Tickets),
		"total":        formatU64(pool.TotalDeposited),
	})
	ec.writePool(pool)
	return nil
}

// addYield lets anyone add prize value to a pool that has not resolved yet.
func (n *Node) addYield(ec *execContext, args arguments) error {
	if err := args.count(2); err != nil {
		return err
	}
	address, err := args.address(0)
	if err != nil {
		return err
	}
	amount, err := args.u64(1)
	if err != nil {
		return err
	}
	if amount == 0 {
		return abort(AbortInvalidParams, "amount must be positive")
	}
	pool, err := ec.loadPool(address)
	if err != nil {
		return err
	}
	if pool.Phase == PhaseResolved {
		return abort(AbortInvalidPhase, "pool is resolved")
	}
	if _, ok := addU64(pool.YieldBalance, amount); !ok {
		return abort(AbortInvalidParams, "yield balance would overflow")
	}
	if err := debit(ec.tx, ec.sender, amount); err != nil {
		return err
	}
	pool.YieldBalance += amount
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.emit(ModulePool, "YieldAddedEvent", map[string]any{
		"pool_address": pool.Address,
		"account":      ec.sender,
		"amount":       formatU64(amount),
	})
	ec.writePool(pool)
	return nil
}

func (n *Node) viewPoolInfo(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	return []any{
		pool.Name,
		pool.MinEntry,
		pool.MaxEntry,
		uint64(pool.CreatedAt),
		uint64(pool.LastDrawAt),
		uint8(pool.Phase),
		pool.TotalDeposited,
	}, nil
}

// viewPoolState exposes settlement bookkeeping not covered by get_pool_info.
func (n *Node) viewPoolState(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	return []any{
		uint8(pool.Phase),
		pool.TotalDeposited,
		pool.YieldBalance,
		pool.StakePending,
		string(pool.Settlement),
		pool.WinningOutcome,
		pool.TotalPaidOut,
		pool.Shortfall,
		pool.Creator,
		pool.PendingOutcome,
	}, nil
}

// viewOutcomeTickets sums the tickets held on one outcome of a pool.
func (n *Node) viewOutcomeTickets(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 2)
	if err != nil {
		return nil, err
	}
	outcome, err := args.string(1)
	if err != nil {
		return nil, err
	}
	if !pool.HasOutcome(outcome) {
		return nil, abort(AbortInvalidOutcome, "%q is not an outcome of this pool", outcome)
	}
	var tickets uint64
	if err := db.Model(&Participant{}).
		Where("pool_address = ? AND outcome = ?", pool.Address, outcome).
		Select("COALESCE(SUM(tickets), 0)").
		Scan(&tickets).Error; err != nil {
		return nil, err
	}
	return []any{tickets}, nil
}

func (n *Node) viewOutcomes(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	return []any{append([]string{}, pool.Outcomes...)}, nil
}

func (n *Node) viewParticipantInfo(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 2)
	if err != nil {
		return nil, err
	}
	account, err := args.address(1)
	if err != nil {
		return nil, err
	}
	participant, err := findParticipant(db, pool.Address, account)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return []any{uint64(0), "", uint64(0)}, nil
	}
	return []any{participant.Amount, participant.Outcome, participant.Tickets}, nil
}

func (n *Node) viewParticipantCount(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&Participant{}).Where("pool_address = ?", pool.Address).Count(&count).Error; err != nil {
		return nil, err
	}
	return []any{uint64(count)}, nil
}

func (n *Node) viewParticipants(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := db.Model(&Participant{}).Where("pool_address = ?", pool.Address).Order("seq asc").Pluck("account", &accounts).Error; err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []string{}
	}
	return []any{accounts}, nil
}

func viewPoolArg(db *gorm.DB, args arguments, count int) (*Pool, error) {
	if err := args.count(count); err != nil {
		return nil, err
	}
	address, err := args.address(0)
	if err != nil {
		return nil, err
	}
	return findPool(db, address)
}
