package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func loadProtocols(db *gorm.DB) ([]Protocol, error) {
	var entries []Protocol
	if err := db.Order("protocol_id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func loadProtocol(db *gorm.DB, id ProtocolID) (*Protocol, error) {
	var entries []Protocol
	if err := db.Where("protocol_id = ?", id).Limit(1).Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, abort(AbortProtocolNotFound, "protocol %d", uint8(id))
	}
	return &entries[0], nil
}

func loadStakingConfig(db *gorm.DB) (*StakingConfig, error) {
	var cfg StakingConfig
	if err := db.First(&cfg, 1).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findPosition(db *gorm.DB, pool string) (*StakingPosition, error) {
	var positions []StakingPosition
	if err := db.Where("pool_address = ?", pool).Limit(1).Find(&positions).Error; err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

// stakeToBest routes amount to the active protocol with the highest rate.
func (ec *execContext) stakeToBest(pool *Pool, amount uint64) (*StakingPosition, error) {
	entries, err := loadProtocols(ec.tx)
	if err != nil {
		return nil, err
	}
	best, ok := SelectBest(entries)
	if !ok {
		return nil, abort(AbortNoActiveProtocol, "no active protocol")
	}
	return ec.stakeTo(pool, amount, &best)
}

// rateSetter is implemented by venues whose payout rate follows the registry.
type rateSetter interface {
	SetRate(rateBps uint64)
}

func (n *Node) applyVenueRate(id ProtocolID, rateBps uint64) {
	if v, ok := n.venues[id].(rateSetter); ok {
		v.SetRate(rateBps)
	}
}

// syncVenueRates aligns venue rates with the persisted registry, which may have
// been updated since the seed values were written.
func (n *Node) syncVenueRates() error {
	entries, err := loadProtocols(n.db)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		n.applyVenueRate(entry.ProtocolID, entry.RateBps)
	}
	return nil
}

func (ec *execContext) stakeToProtocol(pool *Pool, amount uint64, id ProtocolID) (*StakingPosition, error) {
	entry, err := loadProtocol(ec.tx, id)
	if err != nil {
		return nil, err
	}
	if !entry.Active {
		return nil, abort(AbortProtocolInactive, "%s is inactive", id)
	}
	return ec.stakeTo(pool, amount, entry)
}

func (ec *execContext) stakeTo(pool *Pool, amount uint64, entry *Protocol) (*StakingPosition, error) {
	existing, err := findPosition(ec.tx, pool.Address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, abort(AbortInvalidPhase, "pool already staked with %s", existing.Protocol)
	}
	venue, ok := ec.node.venues[entry.ProtocolID]
	if !ok {
		return nil, abort(AbortStakeFailed, "no venue for %s", entry.ProtocolID)
	}
	if err := venue.Supply(ec.ctx, pool.Address, amount); err != nil {
		return nil, abort(AbortStakeFailed, "%s supply failed: %v", entry.ProtocolID, err)
	}

	position := &StakingPosition{
		PoolAddress:  pool.Address,
		StakedAmount: amount,
		StakedAt:     ec.now.Unix(),
		UnlockAt:     ec.now.Add(ec.node.cfg.StakeLockDuration).Unix(),
		Protocol:     entry.ProtocolID,
	}
	if err := ec.tx.Create(position).Error; err != nil {
		return nil, err
	}
	entry.TotalDeposited += amount
	if err := ec.tx.Save(entry).Error; err != nil {
		return nil, err
	}
	cfg, err := loadStakingConfig(ec.tx)
	if err != nil {
		return nil, err
	}
	cfg.TotalStaked += amount
	if err := ec.tx.Save(cfg).Error; err != nil {
		return nil, err
	}

	ec.emit(ModuleStaking, "StakedEvent", map[string]any{
		"pool_address": pool.Address,
		"protocol":     formatU64(uint64(entry.ProtocolID)),
		"amount":       formatU64(amount),
		"rate_bps":     formatU64(entry.RateBps),
	})
	return position, nil
}

// unstake pulls principal plus yield back from the venue and clears the position.
// Realized yield is added to the pool's yield balance; a loss is recorded as shortfall.
func (ec *execContext) unstake(pool *Pool) (returned, realized uint64, err error) {
	position, err := findPosition(ec.tx, pool.Address)
	if err != nil {
		return 0, 0, err
	}
	if position == nil {
		return 0, 0, abort(AbortNoActivePosition, "pool %s has no active stake", pool.Address)
	}
	venue, ok := ec.node.venues[position.Protocol]
	if !ok {
		return 0, 0, abort(AbortStakeFailed, "no venue for %s", position.Protocol)
	}
	returned, err = venue.Withdraw(ec.ctx, pool.Address, position.StakedAmount, time.Unix(position.StakedAt, 0))
	if err != nil {
		return 0, 0, abort(AbortStakeFailed, "%s withdraw failed: %v", position.Protocol, err)
	}

	if err := ec.tx.Delete(position).Error; err != nil {
		return 0, 0, err
	}
	entry, err := loadProtocol(ec.tx, position.Protocol)
	if err != nil {
		return 0, 0, err
	}
	entry.TotalDeposited = saturatingSub(entry.TotalDeposited, position.StakedAmount)
	if err := ec.tx.Save(entry).Error; err != nil {
		return 0, 0, err
	}
	cfg, err := loadStakingConfig(ec.tx)
	if err != nil {
		return 0, 0, err
	}
	cfg.TotalStaked = saturatingSub(cfg.TotalStaked, position.StakedAmount)

	if returned >= position.StakedAmount {
		realized = returned - position.StakedAmount
		yieldBalance, ok := addU64(pool.YieldBalance, realized)
		if !ok {
			return 0, 0, abort(AbortOverflow, "yield balance would overflow")
		}
		pool.YieldBalance = yieldBalance
		if total, ok := addU64(cfg.TotalYieldGenerated, realized); ok {
			cfg.TotalYieldGenerated = total
		}
	} else {
		pool.Shortfall += position.StakedAmount - returned
		ec.node.logger.Warn("protocol returned less than staked",
			zap.String("pool", pool.Address),
			zap.Stringer("protocol", position.Protocol),
			zap.Uint64("staked", position.StakedAmount),
			zap.Uint64("returned", returned),
		)
	}
	if err := ec.tx.Save(cfg).Error; err != nil {
		return 0, 0, err
	}

	ec.emit(ModuleStaking, "UnstakedEvent", map[string]any{
		"pool_address": pool.Address,
		"protocol":     formatU64(uint64(position.Protocol)),
		"staked":       formatU64(position.StakedAmount),
		"returned":     formatU64(returned),
		"yield":        formatU64(realized),
	})
	return returned, realized, nil
}

// stakeablePool loads a locked pool whose settlement has not started. Only such
// pools may be staked or unstaked by hand.
func (ec *execContext) stakeablePool(args arguments) (*Pool, error) {
	pool, err := ec.poolArg(args)
	if err != nil {
		return nil, err
	}
	if pool.Phase != PhaseLocked || pool.Settlement != SettlementNone {
		return nil, abort(AbortInvalidPhase, "pool is %s with settlement %s", pool.Phase, pool.Settlement)
	}
	if pool.TotalDeposited == 0 {
		return nil, abort(AbortInvalidPhase, "pool has nothing to stake")
	}
	return pool, nil
}

func (ec *execContext) saveStaked(pool *Pool) error {
	pool.StakePending = false
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.writePool(pool)
	return nil
}

func (n *Node) stakeToBestProtocol(ec *execContext, args arguments) error {
	pool, err := ec.stakeablePool(args)
	if err != nil {
		return err
	}
	if _, err := ec.stakeToBest(pool, pool.TotalDeposited); err != nil {
		return err
	}
	return ec.saveStaked(pool)
}

// stakeToNamedProtocol stakes into the protocol given as the second argument,
// or into the default protocol when it is omitted.
func (n *Node) stakeToNamedProtocol(ec *execContext, args arguments) error {
	if len(args) != 1 && len(args) != 2 {
		return abort(AbortInvalidParams, "expected 1 or 2 arguments, got %d", len(args))
	}
	pool, err := ec.stakeablePool(args[:1])
	if err != nil {
		return err
	}
	var id ProtocolID
	if len(args) == 2 {
		raw, err := args.u8(1)
		if err != nil {
			return err
		}
		id = ProtocolID(raw)
	} else {
		cfg, err := loadStakingConfig(ec.tx)
		if err != nil {
			return err
		}
		id = cfg.DefaultProtocol
	}
	if _, err := ec.stakeToProtocol(pool, pool.TotalDeposited, id); err != nil {
		return err
	}
	return ec.saveStaked(pool)
}

func (n *Node) stakeToProtocolOf(id ProtocolID) entryFunc {
	return func(ec *execContext, args arguments) error {
		pool, err := ec.stakeablePool(args)
		if err != nil {
			return err
		}
		if _, err := ec.stakeToProtocol(pool, pool.TotalDeposited, id); err != nil {
			return err
		}
		return ec.saveStaked(pool)
	}
}

// unstakePool returns a locked pool's funds to custody before the draw. The
// pool is left stake pending, so retry_stake or a stake entry can route it again.
func (n *Node) unstakePool(ec *execContext, args arguments) error {
	pool, err := ec.poolArg(args)
	if err != nil {
		return err
	}
	if pool.Phase != PhaseLocked || pool.Settlement != SettlementNone {
		return abort(AbortInvalidPhase, "pool is %s with settlement %s", pool.Phase, pool.Settlement)
	}
	if _, _, err := ec.unstake(pool); err != nil {
		return err
	}
	pool.StakePending = true
	if err := ec.tx.Save(pool).Error; err != nil {
		return err
	}
	ec.writePool(pool)
	return nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func (n *Node) setDefaultProtocol(ec *execContext, args arguments) error {
	if err := args.count(1); err != nil {
		return err
	}
	raw, err := args.u8(0)
	if err != nil {
		return err
	}
	id := ProtocolID(raw)
	if _, err := loadProtocol(ec.tx, id); err != nil {
		return err
	}
	cfg, err := loadStakingConfig(ec.tx)
	if err != nil {
		return err
	}
	cfg.DefaultProtocol = id
	if err := ec.tx.Save(cfg).Error; err != nil {
		return err
	}
	ec.emit(ModuleStaking, "DefaultProtocolChangedEvent", map[string]any{
		"protocol": formatU64(uint64(id)),
	})
	return nil
}

func (n *Node) updateProtocolRate(ec *execContext, args arguments) error {
	if err := args.count(2); err != nil {
		return err
	}
	raw, err := args.u8(0)
	if err != nil {
		return err
	}
	rate, err := args.u64(1)
	if err != nil {
		return err
	}
	return ec.setRate(ProtocolID(raw), rate)
}

func (n *Node) updateRateOf(id ProtocolID) entryFunc {
	return func(ec *execContext, args arguments) error {
		if err := args.count(1); err != nil {
			return err
		}
		rate, err := args.u64(0)
		if err != nil {
			return err
		}
		return ec.setRate(id, rate)
	}
}

func (ec *execContext) setRate(id ProtocolID, rate uint64) error {
	entry, err := loadProtocol(ec.tx, id)
	if err != nil {
		return err
	}
	entry.RateBps = rate
	if err := ec.tx.Save(entry).Error; err != nil {
		return err
	}
	ec.afterCommit(func() { ec.node.applyVenueRate(id, rate) })
	ec.emit(ModuleStaking, "ProtocolUpdatedEvent", map[string]any{
		"protocol": formatU64(uint64(id)),
		"rate_bps": formatU64(rate),
		"active":   entry.Active,
	})
	return nil
}

func (n *Node) setProtocolActive(ec *execContext, args arguments) error {
	if err := args.count(2); err != nil {
		return err
	}
	raw, err := args.u8(0)
	if err != nil {
		return err
	}
	active, err := args.bool(1)
	if err != nil {
		return err
	}
	entry, err := loadProtocol(ec.tx, ProtocolID(raw))
	if err != nil {
		return err
	}
	entry.Active = active
	if err := ec.tx.Save(entry).Error; err != nil {
		return err
	}
	ec.emit(ModuleStaking, "ProtocolUpdatedEvent", map[string]any{
		"protocol": formatU64(uint64(entry.ProtocolID)),
		"rate_bps": formatU64(entry.RateBps),
		"active":   active,
	})
	return nil
}

func (n *Node) viewStakingPosition(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	position, err := findPosition(db, pool.Address)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return []any{uint64(0), uint64(0), uint64(0), uint8(0), false}, nil
	}
	return []any{
		position.StakedAmount,
		uint64(position.StakedAt),
		uint64(position.UnlockAt),
		uint8(position.Protocol),
		true,
	}, nil
}

func (n *Node) viewTotalStaked(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	cfg, err := loadStakingConfig(db)
	if err != nil {
		return nil, err
	}
	return []any{cfg.TotalStaked}, nil
}

func (n *Node) viewTotalYield(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	cfg, err := loadStakingConfig(db)
	if err != nil {
		return nil, err
	}
	return []any{cfg.TotalYieldGenerated}, nil
}

func (n *Node) viewProtocolStats(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(1); err != nil {
		return nil, err
	}
	raw, err := args.u8(0)
	if err != nil {
		return nil, err
	}
	entry, err := loadProtocol(db, ProtocolID(raw))
	if err != nil {
		return nil, err
	}
	return []any{entry.RateBps, entry.TotalDeposited, entry.Active}, nil
}

func (n *Node) viewDefaultProtocol(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	cfg, err := loadStakingConfig(db)
	if err != nil {
		return nil, err
	}
	return []any{uint8(cfg.DefaultProtocol)}, nil
}

func (n *Node) viewBestAPY(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	entries, err := loadProtocols(db)
	if err != nil {
		return nil, err
	}
	best, ok := SelectBest(entries)
	if !ok {
		return nil, abort(AbortNoActiveProtocol, "no active protocol")
	}
	return []any{uint8(best.ProtocolID), best.RateBps}, nil
}

// viewEstimateYield estimates accrued yield at the protocol's current rate, the
// rate its venue pays on withdrawal.
func (n *Node) viewEstimateYield(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	pool, err := viewPoolArg(db, args, 1)
	if err != nil {
		return nil, err
	}
	position, err := findPosition(db, pool.Address)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return []any{uint64(0)}, nil
	}
	entry, err := loadProtocol(db, position.Protocol)
	if err != nil {
		return nil, err
	}
	elapsed := n.now().Sub(time.Unix(position.StakedAt, 0))
	return []any{AccruedYield(position.StakedAmount, entry.RateBps, elapsed)}, nil
}
