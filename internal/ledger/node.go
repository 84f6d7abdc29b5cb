package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config describes the node's genesis and governance settings.
type Config struct {
	// ModuleAddress prefixes every function reference the node serves.
	ModuleAddress string
	// Admin is the only account allowed to call administrative entry functions.
	Admin string
	// StakeLockDuration is added to the stake time to compute a position's unlock time.
	StakeLockDuration time.Duration
	DefaultProtocol   ProtocolID
	// Protocols seeds the registry on first start.
	Protocols []ProtocolSeed
}

type ProtocolSeed struct {
	ID      ProtocolID
	RateBps uint64
	Active  bool
}

type Option func(*Node)

func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

func WithEntropy(src EntropySource) Option {
	return func(n *Node) { n.entropy = src }
}

// WithVenue replaces the venue serving a protocol.
func WithVenue(v YieldVenue) Option {
	return func(n *Node) { n.venues[v.Protocol()] = v }
}

func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// Node executes signed transactions against the ledger tables. Transactions are
// applied one at a time and each one either fully applies or is committed as failed.
type Node struct {
	db      *gorm.DB
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	entropy EntropySource
	venues  map[ProtocolID]YieldVenue
	entries map[string]entry
	views   map[string]viewFunc

	mu       sync.Mutex
	version  uint64
	lastHash string
}

var _ Client = (*Node)(nil)

func NewNode(db *gorm.DB, cfg Config, opts ...Option) (*Node, error) {
	if !common.IsHexAddress(cfg.Admin) {
		return nil, fmt.Errorf("invalid admin address %q", cfg.Admin)
	}
	if cfg.ModuleAddress == "" {
		return nil, fmt.Errorf("module address is required")
	}
	cfg.Admin = common.HexToAddress(cfg.Admin).Hex()
	cfg.ModuleAddress = strings.ToLower(cfg.ModuleAddress)

	n := &Node{
		db:      db,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
		entropy: ChainEntropy{},
		venues:  map[ProtocolID]YieldVenue{},
	}
	for _, opt := range opts {
		opt(n)
	}
	for _, seed := range cfg.Protocols {
		if _, ok := n.venues[seed.ID]; !ok {
			n.venues[seed.ID] = NewSimulatedVenue(seed.ID, seed.RateBps, n.now)
		}
	}
	n.registerEntries()
	n.registerViews()

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	if err := n.genesis(); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if err := n.syncVenueRates(); err != nil {
		return nil, fmt.Errorf("failed to load protocol rates: %w", err)
	}

	var latest CommittedTransaction
	if err := db.Order("version desc").Limit(1).Find(&latest).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger head: %w", err)
	}
	n.version = latest.Version
	n.lastHash = latest.Hash
	return n, nil
}

func (n *Node) genesis() error {
	return n.db.Transaction(func(tx *gorm.DB) error {
		for _, seed := range n.cfg.Protocols {
			if !seed.ID.Valid() {
				return fmt.Errorf("unknown protocol %d", seed.ID)
			}
			var count int64
			if err := tx.Model(&Protocol{}).Where("protocol_id = ?", seed.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			entry := Protocol{ProtocolID: seed.ID, Name: seed.ID.String(), RateBps: seed.RateBps, Active: seed.Active}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		var cfg StakingConfig
		if err := tx.Limit(1).Find(&cfg, 1).Error; err != nil {
			return err
		}
		if cfg.ID == 0 {
			return tx.Create(&StakingConfig{ID: 1, DefaultProtocol: n.cfg.DefaultProtocol}).Error
		}
		return nil
	})
}

// ModuleAddress returns the address prefix of the node's functions.
func (n *Node) ModuleAddress() string { return n.cfg.ModuleAddress }

// Admin returns the administrative account.
func (n *Node) Admin() string { return n.cfg.Admin }

// Fund mints base units into an account outside of any transaction.
func (n *Node) Fund(ctx context.Context, address string, amount uint64) error {
	addr, ok := NormalizeAddress(address)
	if !ok {
		return fmt.Errorf("invalid address %q", address)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return credit(tx, addr, amount)
	})
}

func (n *Node) SubmitTransaction(ctx context.Context, signed SignedTransaction) (PendingTransaction, error) {
	hash, err := signed.Hash()
	if err != nil {
		return PendingTransaction{}, err
	}
	sender, err := signed.RecoverSender()
	if err != nil {
		return PendingTransaction{}, err
	}
	if !strings.EqualFold(sender, signed.Payload.Sender) {
		return PendingTransaction{}, fmt.Errorf("%w: signer %s does not match sender %s", ErrInvalidSignature, sender, signed.Payload.Sender)
	}
	if len(signed.Payload.TypeArguments) > 0 {
		return PendingTransaction{}, ErrUnsupportedTypeArgument
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// Resubmitting a committed transaction returns the original handle.
	var existing []CommittedTransaction
	if err := n.db.WithContext(ctx).Where("hash = ?", hash).Limit(1).Find(&existing).Error; err != nil {
		return PendingTransaction{}, err
	}
	if len(existing) > 0 {
		return PendingTransaction{Hash: hash}, nil
	}

	now := n.now()
	if exp := signed.Payload.ExpirationTimestamp; exp > 0 && now.Unix() > exp {
		return PendingTransaction{}, ErrTransactionExpired
	}

	account, err := loadAccount(n.db.WithContext(ctx), sender)
	if err != nil {
		return PendingTransaction{}, err
	}
	switch {
	case signed.Payload.SequenceNumber < account.SequenceNumber:
		return PendingTransaction{}, fmt.Errorf("%w: expected %d, got %d", ErrSequenceNumberTooOld, account.SequenceNumber, signed.Payload.SequenceNumber)
	case signed.Payload.SequenceNumber > account.SequenceNumber:
		return PendingTransaction{}, fmt.Errorf("%w: expected %d, got %d", ErrSequenceNumberTooNew, account.SequenceNumber, signed.Payload.SequenceNumber)
	}

	if err := n.execute(ctx, hash, sender, signed.Payload, now); err != nil {
		return PendingTransaction{}, err
	}
	return PendingTransaction{Hash: hash}, nil
}

func (n *Node) execute(ctx context.Context, hash, sender string, payload Payload, now time.Time) error {
	record := &CommittedTransaction{
		Hash:           hash,
		Version:        n.version + 1,
		Sender:         sender,
		SequenceNumber: payload.SequenceNumber,
		Function:       payload.Function,
		Arguments:      payload.Arguments,
		Timestamp:      now.Unix(),
	}
	ec := &execContext{
		ctx:        ctx,
		node:       n,
		hash:       hash,
		sender:     sender,
		sequence:   payload.SequenceNumber,
		now:        now,
		version:    record.Version,
		parentHash: n.lastHash,
	}
	args := arguments(payload.Arguments)
	if args == nil {
		args = arguments{}
	}

	e, err := n.lookupEntry(payload.Function)
	if err == nil && e.admin && sender != n.cfg.Admin {
		err = abort(AbortNotAuthorized, "%s is not the admin", sender)
	}
	var checkpointEvents []Event
	var checkpointChanges []Change
	if err == nil && e.checkpoint != nil {
		// The checkpoint commits on its own. A later abort does not undo it.
		err = n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ec.tx = tx
			return e.checkpoint(ec, args)
		})
		if err == nil {
			checkpointEvents = append([]Event{}, ec.events...)
			checkpointChanges = append([]Change{}, ec.changes...)
		}
	}
	if err == nil {
		err = n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ec.tx = tx
			if err := e.run(ec, args); err != nil {
				return err
			}
			record.Success = true
			record.VMStatus = "Executed successfully"
			record.Events = ec.events
			record.Changes = ec.changes
			if err := bumpSequence(tx, sender); err != nil {
				return err
			}
			return tx.Create(record).Error
		})
	}

	if err != nil {
		var abortErr *AbortError
		if !errors.As(err, &abortErr) {
			n.logger.Error("transaction execution failed",
				zap.String("hash", hash),
				zap.String("function", payload.Function),
				zap.Error(err),
			)
			return fmt.Errorf("failed to execute %s: %w", payload.Function, err)
		}
		record.Success = false
		record.VMStatus = "Move abort: " + abortErr.Error()
		record.AbortCode = string(abortErr.Code)
		// A committed checkpoint stays visible on the failed record.
		record.Events = checkpointEvents
		record.Changes = checkpointChanges
		if record.Events == nil {
			record.Events = []Event{}
		}
		if record.Changes == nil {
			record.Changes = []Change{}
		}
		if err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := bumpSequence(tx, sender); err != nil {
				return err
			}
			return tx.Create(record).Error
		}); err != nil {
			return fmt.Errorf("failed to commit aborted transaction: %w", err)
		}
	}

	n.version = record.Version
	n.lastHash = hash
	if record.Success {
		for _, fn := range ec.committed {
			fn()
		}
	}
	n.logger.Info("transaction committed",
		zap.String("hash", hash),
		zap.Uint64("version", record.Version),
		zap.String("function", payload.Function),
		zap.String("sender", sender),
		zap.Bool("success", record.Success),
		zap.String("vm_status", record.VMStatus),
	)
	return nil
}

func (n *Node) WaitForTransaction(ctx context.Context, hash string) (*TransactionResult, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		result, err := n.GetTransactionByHash(ctx, hash)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *Node) GetTransactionByHash(ctx context.Context, hash string) (*TransactionResult, error) {
	var records []CommittedTransaction
	if err := n.db.WithContext(ctx).Where("hash = ?", strings.ToLower(hash)).Limit(1).Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, hash)
	}
	return records[0].result(), nil
}

func (n *Node) View(ctx context.Context, req ViewRequest) ([]any, error) {
	address, module, name, err := SplitFunctionID(req.Function)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrViewFunctionNotFound, err)
	}
	if !strings.EqualFold(address, n.cfg.ModuleAddress) {
		return nil, fmt.Errorf("%w: %s", ErrViewFunctionNotFound, req.Function)
	}
	view, ok := n.views[module+"::"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewFunctionNotFound, req.Function)
	}
	if len(req.TypeArguments) > 0 {
		return nil, ErrUnsupportedTypeArgument
	}
	args := arguments(req.Arguments)
	if args == nil {
		args = arguments{}
	}
	return view(ctx, n.db.WithContext(ctx), args)
}

func (n *Node) lookupEntry(function string) (entry, error) {
	address, module, name, err := SplitFunctionID(function)
	if err != nil {
		return entry{}, abort(AbortFunctionNotFound, "%v", err)
	}
	if !strings.EqualFold(address, n.cfg.ModuleAddress) {
		return entry{}, abort(AbortFunctionNotFound, "unknown module address %s", address)
	}
	e, ok := n.entries[module+"::"+name]
	if !ok {
		return entry{}, abort(AbortFunctionNotFound, "%s", function)
	}
	return e, nil
}

func loadAccount(db *gorm.DB, address string) (Account, error) {
	var accounts []Account
	if err := db.Where("address = ?", address).Limit(1).Find(&accounts).Error; err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{Address: address}, nil
	}
	return accounts[0], nil
}

func bumpSequence(tx *gorm.DB, address string) error {
	account, err := loadAccount(tx, address)
	if err != nil {
		return err
	}
	account.SequenceNumber++
	return tx.Save(&account).Error
}

func credit(tx *gorm.DB, address string, amount uint64) error {
	account, err := loadAccount(tx, address)
	if err != nil {
		return err
	}
	if account.Balance+amount < account.Balance {
		return fmt.Errorf("balance overflow for %s", address)
	}
	account.Balance += amount
	return tx.Save(&account).Error
}

func debit(tx *gorm.DB, address string, amount uint64) error {
	account, err := loadAccount(tx, address)
	if err != nil {
		return err
	}
	if account.Balance < amount {
		return abort(AbortInsufficientBalance, "balance %d is below %d", account.Balance, amount)
	}
	account.Balance -= amount
	return tx.Save(&account).Error
}
