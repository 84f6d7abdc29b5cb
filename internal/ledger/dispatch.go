package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type execContext struct {
	ctx        context.Context
	node       *Node
	tx         *gorm.DB
	hash       string
	sender     string
	sequence   uint64
	now        time.Time
	version    uint64
	parentHash string
	events     []Event
	changes    []Change
	// committed runs after the transaction's writes commit.
	committed  []func()
}

type entryFunc func(ec *execContext, args arguments) error

type entry struct {
	admin bool
	// checkpoint, when set, runs and commits in its own database transaction before run.
	checkpoint entryFunc
	run        entryFunc
}

type viewFunc func(ctx context.Context, db *gorm.DB, args arguments) ([]any, error)

func (n *Node) registerEntries() {
	n.entries = map[string]entry{
		ModuleAccount + "::transfer": {run: n.transfer},

		ModulePoolFactory + "::create_pool": {run: n.createPool},

		ModulePool + "::deposit":   {run: n.deposit},
		ModulePool + "::withdraw":  {run: n.withdraw},
		ModulePool + "::add_yield": {run: n.addYield},

		ModuleStaking + "::set_default_protocol": {admin: true, run: n.setDefaultProtocol},
		ModuleStaking + "::update_protocol_rate": {admin: true, run: n.updateProtocolRate},
		ModuleStaking + "::update_aave_apy":      {admin: true, run: n.updateRateOf(ProtocolAave)},
		ModuleStaking + "::update_echelon_apy":   {admin: true, run: n.updateRateOf(ProtocolEchelon)},
		ModuleStaking + "::set_protocol_active":  {admin: true, run: n.setProtocolActive},

		ModuleStaking + "::stake_to_best_protocol": {admin: true, run: n.stakeToBestProtocol},
		ModuleStaking + "::stake_to_protocol":      {admin: true, run: n.stakeToNamedProtocol},
		ModuleStaking + "::stake_to_aave":          {admin: true, run: n.stakeToProtocolOf(ProtocolAave)},
		ModuleStaking + "::stake_to_echelon":       {admin: true, run: n.stakeToProtocolOf(ProtocolEchelon)},
		ModuleStaking + "::unstake":                {admin: true, run: n.unstakePool},

		ModuleManager + "::lock_and_stake":         {admin: true, run: n.lockAndStake},
		ModuleManager + "::retry_stake":            {admin: true, run: n.retryStake},
		ModuleManager + "::auto_resolve":           {admin: true, checkpoint: n.prepareAutoResolve, run: n.finishSettlement},
		ModuleManager + "::resolve_and_distribute": {admin: true, checkpoint: n.prepareResolve, run: n.finishSettlement},
		ModuleManager + "::complete_settlement":    {admin: true, run: n.completeSettlement},
	}
}

func (n *Node) registerViews() {
	n.views = map[string]viewFunc{
		ModuleAccount + "::get_balance":         n.viewBalance,
		ModuleAccount + "::get_sequence_number": n.viewSequenceNumber,

		ModulePoolFactory + "::get_all_pools":  n.viewAllPools,
		ModulePoolFactory + "::get_pool_count": n.viewPoolCount,

		ModulePool + "::get_pool_info":         n.viewPoolInfo,
		ModulePool + "::get_pool_state":        n.viewPoolState,
		ModulePool + "::get_outcomes":          n.viewOutcomes,
		ModulePool + "::get_participant_info":  n.viewParticipantInfo,
		ModulePool + "::get_participant_count": n.viewParticipantCount,
		ModulePool + "::get_participants":      n.viewParticipants,
		ModulePool + "::get_outcome_tickets":   n.viewOutcomeTickets,

		ModuleStaking + "::get_staking_position":      n.viewStakingPosition,
		ModuleStaking + "::get_total_staked":          n.viewTotalStaked,
		ModuleStaking + "::get_total_yield_generated": n.viewTotalYield,
		ModuleStaking + "::get_protocol_stats":        n.viewProtocolStats,
		ModuleStaking + "::get_default_protocol":      n.viewDefaultProtocol,
		ModuleStaking + "::get_best_apy":              n.viewBestAPY,
		ModuleStaking + "::estimate_current_yield":    n.viewEstimateYield,

		ModuleManager + "::get_admin":               n.viewAdmin,
		ModuleManager + "::get_pending_settlements": n.viewPendingSettlements,
	}
}

func (ec *execContext) emit(module, name string, data map[string]any) {
	ec.events = append(ec.events, Event{
		Type: FunctionID(ec.node.cfg.ModuleAddress, module, name),
		Data: data,
	})
}

func (ec *execContext) afterCommit(fn func()) {
	ec.committed = append(ec.committed, fn)
}

// writePool records the pool resource as changed by this transaction.
func (ec *execContext) writePool(pool *Pool) {
	change := Change{
		Type:    "write_resource",
		Address: pool.Address,
		Data: map[string]any{
			"type": FunctionID(ec.node.cfg.ModuleAddress, ModulePool, "Pool"),
			"data": map[string]any{
				"name":            pool.Name,
				"outcomes":        pool.Outcomes,
				"min_entry":       formatU64(pool.MinEntry),
				"max_entry":       formatU64(pool.MaxEntry),
				"status":          formatU64(uint64(pool.Phase)),
				"total_deposited": formatU64(pool.TotalDeposited),
				"yield_balance":   formatU64(pool.YieldBalance),
			},
		},
	}
	for i := range ec.changes {
		if ec.changes[i].Address == pool.Address {
			ec.changes[i] = change
			return
		}
	}
	ec.changes = append(ec.changes, change)
}

func (ec *execContext) loadPool(address string) (*Pool, error) {
	return findPool(ec.tx, address)
}

func findPool(db *gorm.DB, address string) (*Pool, error) {
	var pools []Pool
	if err := db.Where("address = ?", address).Limit(1).Find(&pools).Error; err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, abort(AbortPoolNotFound, "%s", address)
	}
	return &pools[0], nil
}

func (n *Node) transfer(ec *execContext, args arguments) error {
	if err := args.count(2); err != nil {
		return err
	}
	to, err := args.address(0)
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
	if err := debit(ec.tx, ec.sender, amount); err != nil {
		return err
	}
	if err := credit(ec.tx, to, amount); err != nil {
		return err
	}
	ec.emit(ModuleAccount, "TransferEvent", map[string]any{
		"from":   ec.sender,
		"to":     to,
		"amount": formatU64(amount),
	})
	return nil
}

func (n *Node) viewBalance(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(1); err != nil {
		return nil, err
	}
	address, err := args.address(0)
	if err != nil {
		return nil, err
	}
	account, err := loadAccount(db, address)
	if err != nil {
		return nil, err
	}
	return []any{account.Balance}, nil
}

func (n *Node) viewSequenceNumber(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(1); err != nil {
		return nil, err
	}
	address, err := args.address(0)
	if err != nil {
		return nil, err
	}
	account, err := loadAccount(db, address)
	if err != nil {
		return nil, err
	}
	return []any{account.SequenceNumber}, nil
}
