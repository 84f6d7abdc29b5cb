package ledger

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"
)

// ValidatePoolParams checks pool creation parameters. Outcomes must be distinct.
func ValidatePoolParams(name string, outcomes []string, minEntry, maxEntry uint64) error {
	if strings.TrimSpace(name) == "" {
		return abort(AbortInvalidParams, "name must not be empty")
	}
	if len(outcomes) == 0 {
		return abort(AbortInvalidParams, "at least one outcome is required")
	}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		o = strings.TrimSpace(o)
		if o == "" {
			return abort(AbortInvalidParams, "outcomes must not be empty")
		}
		if _, dup := seen[o]; dup {
			return abort(AbortInvalidParams, "duplicate outcome %q", o)
		}
		seen[o] = struct{}{}
	}
	if minEntry == 0 || maxEntry == 0 {
		return abort(AbortInvalidParams, "entry bounds must be positive")
	}
	if minEntry > maxEntry {
		return abort(AbortInvalidParams, "min entry %d exceeds max entry %d", minEntry, maxEntry)
	}
	return nil
}

// PoolAddress derives the address of the pool created by creator at sequence.
func PoolAddress(creator string, sequence uint64) string {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	return crypto.Keccak256Hash(
		common.HexToAddress(creator).Bytes(),
		seq[:],
		[]byte("safebet::pool"),
	).Hex()
}

func (n *Node) createPool(ec *execContext, args arguments) error {
	if err := args.count(4); err != nil {
		return err
	}
	name, err := args.string(0)
	if err != nil {
		return err
	}
	outcomes, err := args.strings(1)
	if err != nil {
		return err
	}
	minEntry, err := args.u64(2)
	if err != nil {
		return err
	}
	maxEntry, err := args.u64(3)
	if err != nil {
		return err
	}
	if err := ValidatePoolParams(name, outcomes, minEntry, maxEntry); err != nil {
		return err
	}
	trimmed := make([]string, len(outcomes))
	for i, o := range outcomes {
		trimmed[i] = strings.TrimSpace(o)
	}

	pool := &Pool{
		Address:    PoolAddress(ec.sender, ec.sequence),
		Name:       strings.TrimSpace(name),
		Creator:    ec.sender,
		Outcomes:   trimmed,
		MinEntry:   minEntry,
		MaxEntry:   maxEntry,
		Phase:      PhaseOpen,
		Settlement: SettlementNone,
		CreatedAt:  ec.now.Unix(),
	}
	if err := ec.tx.Create(pool).Error; err != nil {
		return err
	}

	ec.emit(ModulePoolFactory, "PoolCreatedEvent", map[string]any{
		"pool_address": pool.Address,
		"creator":      pool.Creator,
		"name":         pool.Name,
		"outcomes":     pool.Outcomes,
		"min_entry":    formatU64(minEntry),
		"max_entry":    formatU64(maxEntry),
		"created_at":   formatU64(uint64(pool.CreatedAt)),
	})
	ec.writePool(pool)
	return nil
}

func (n *Node) viewAllPools(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	var addresses []string
	if err := db.Model(&Pool{}).Order("created_at asc, address asc").Pluck("address", &addresses).Error; err != nil {
		return nil, err
	}
	if addresses == nil {
		addresses = []string{}
	}
	return []any{addresses}, nil
}

func (n *Node) viewPoolCount(ctx context.Context, db *gorm.DB, args arguments) ([]any, error) {
	if err := args.count(0); err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&Pool{}).Count(&count).Error; err != nil {
		return nil, err
	}
	return []any{uint64(count)}, nil
}
