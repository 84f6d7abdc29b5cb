package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Metadata keys carried on transaction records for the mirror hooks.
const (
	MetadataPoolName = "pool_name"
	MetadataImage    = "image"
	MetadataTarget   = "target"
	MetadataToken    = "token"
	MetadataOutcomes = "outcomes"
)

type CreatePoolRequest struct {
	Name     string
	Outcomes []string
	// MinEntry and MaxEntry are display amounts of the pool token.
	MinEntry decimal.Decimal
	MaxEntry decimal.Decimal
	// Target is the prize size shown on the pool card. Display only.
	Target decimal.Decimal
	Image  string
}

type PoolInfo struct {
	Address          string       `json:"address"`
	Name             string       `json:"name"`
	Creator          string       `json:"creator"`
	Outcomes         []string     `json:"outcomes"`
	MinEntry         uint64       `json:"min_entry"`
	MaxEntry         uint64       `json:"max_entry"`
	CreatedAt        int64        `json:"created_at"`
	LastDrawAt       int64        `json:"last_draw_at"`
	Phase            ledger.Phase `json:"phase"`
	Status           string       `json:"status"`
	TotalDeposited   uint64       `json:"total_deposited"`
	YieldBalance     uint64       `json:"yield_balance"`
	StakePending     bool         `json:"stake_pending"`
	Settlement       string       `json:"settlement"`
	WinningOutcome   string       `json:"winning_outcome,omitempty"`
	TotalPaidOut     uint64       `json:"total_paid_out"`
	Shortfall        uint64       `json:"shortfall"`
	ParticipantCount uint64       `json:"participant_count"`
	PendingOutcome   string       `json:"pending_outcome,omitempty"`
}

func (p *PoolInfo) HasOutcome(outcome string) bool {
	return slices.Contains(p.Outcomes, outcome)
}

type ParticipantInfo struct {
	Pool    string `json:"pool"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
	Outcome string `json:"outcome,omitempty"`
	Tickets uint64 `json:"tickets"`
}

func (p *ParticipantInfo) Active() bool { return p.Amount > 0 }

type PoolService interface {
	Token() models.Token
	CreatePool(ctx context.Context, req CreatePoolRequest) (*Outcome, error)
	Deposit(ctx context.Context, pool string, amount decimal.Decimal, outcome string) (*Outcome, error)
	Withdraw(ctx context.Context, pool string) (*Outcome, error)
	AddYield(ctx context.Context, pool string, amount decimal.Decimal) (*Outcome, error)
	GetPool(ctx context.Context, pool string) (*PoolInfo, error)
	GetParticipant(ctx context.Context, pool, account string) (*ParticipantInfo, error)
	ListPools(ctx context.Context) ([]PoolInfo, error)
	Balance(ctx context.Context, account string) (uint64, error)
}

type poolService struct {
	executor TransactionExecutor
	views    ViewService
	token    models.Token
}

func NewPoolService(executor TransactionExecutor, views ViewService, token models.Token) PoolService {
	return &poolService{executor: executor, views: views, token: token}
}

func (s *poolService) Token() models.Token { return s.token }

func (s *poolService) CreatePool(ctx context.Context, req CreatePoolRequest) (*Outcome, error) {
	minEntry, err := s.baseUnits(req.MinEntry, "min entry")
	if err != nil {
		return rejectedOutcome(err), nil
	}
	maxEntry, err := s.baseUnits(req.MaxEntry, "max entry")
	if err != nil {
		return rejectedOutcome(err), nil
	}
	outcomes := make([]string, len(req.Outcomes))
	for i, o := range req.Outcomes {
		outcomes[i] = strings.TrimSpace(o)
	}
	if err := ledger.ValidatePoolParams(req.Name, outcomes, minEntry, maxEntry); err != nil {
		return rejectedOutcome(err), nil
	}

	return s.executor.Execute(ctx, TransactionRequest{
		Module:    ledger.ModulePoolFactory,
		Function:  "create_pool",
		Arguments: []any{strings.TrimSpace(req.Name), outcomes, ledger.U64(minEntry), ledger.U64(maxEntry)},
		Type:      models.TransactionTypePoolCreation,
		Metadata: []models.TransactionMetadata{
			{Key: MetadataPoolName, Value: strings.TrimSpace(req.Name)},
			{Key: MetadataImage, Value: req.Image},
			{Key: MetadataTarget, Value: req.Target.String()},
			{Key: MetadataToken, Value: s.token.Symbol},
		},
	})
}

// Deposit re-validates every precondition against fresh reads before submitting.
func (s *poolService) Deposit(ctx context.Context, pool string, amount decimal.Decimal, outcome string) (*Outcome, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	base, err := s.baseUnits(amount, "amount")
	if err != nil {
		return rejectedOutcome(err), nil
	}
	info, err := readPool(ctx, s.views.Fresh, address)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase != ledger.PhaseOpen {
		return rejectedOutcome(fmt.Errorf("pool %s is %s: %w", address, info.Status, ledger.ErrPoolNotOpen)), nil
	}
	if !info.HasOutcome(outcome) {
		return rejectedOutcome(fmt.Errorf("outcome %q is not offered: %w", outcome, ledger.ErrInvalidOutcome)), nil
	}
	position, err := readParticipant(ctx, s.views.Fresh, address, s.executor.Sender())
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if position.Active() {
		return rejectedOutcome(fmt.Errorf("%s already holds a position: %w", s.executor.Sender(), ledger.ErrAlreadyDeposited)), nil
	}
	if base < info.MinEntry || base > info.MaxEntry {
		return rejectedOutcome(fmt.Errorf("amount %d outside [%d, %d]: %w", base, info.MinEntry, info.MaxEntry, ledger.ErrAmountOutOfRange)), nil
	}
	if err := s.requireBalance(ctx, base); err != nil {
		return rejectedOutcome(err), nil
	}

	return s.executor.Execute(ctx, TransactionRequest{
		Module:      ledger.ModulePool,
		Function:    "deposit",
		Arguments:   []any{address, ledger.U64(base), outcome},
		Type:        models.TransactionTypeDeposit,
		PoolAddress: address,
		Metadata:    s.poolMetadata(info),
	})
}

func (s *poolService) Withdraw(ctx context.Context, pool string) (*Outcome, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	info, err := readPool(ctx, s.views.Fresh, address)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase != ledger.PhaseOpen {
		return rejectedOutcome(fmt.Errorf("pool %s is %s: %w", address, info.Status, ledger.ErrPoolLocked)), nil
	}
	position, err := readParticipant(ctx, s.views.Fresh, address, s.executor.Sender())
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if !position.Active() {
		return rejectedOutcome(fmt.Errorf("%s has no position: %w", s.executor.Sender(), ledger.ErrNotAParticipant)), nil
	}

	return s.executor.Execute(ctx, TransactionRequest{
		Module:      ledger.ModulePool,
		Function:    "withdraw",
		Arguments:   []any{address},
		Type:        models.TransactionTypeWithdraw,
		PoolAddress: address,
		Metadata:    s.poolMetadata(info),
	})
}

func (s *poolService) AddYield(ctx context.Context, pool string, amount decimal.Decimal) (*Outcome, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	base, err := s.baseUnits(amount, "amount")
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if base == 0 {
		return rejectedOutcome(validationError("yield amount must be positive")), nil
	}
	info, err := readPool(ctx, s.views.Fresh, address)
	if err != nil {
		return rejectedOutcome(err), nil
	}
	if info.Phase == ledger.PhaseResolved {
		return rejectedOutcome(fmt.Errorf("pool %s is resolved: %w", address, ledger.ErrInvalidPhase)), nil
	}
	if err := s.requireBalance(ctx, base); err != nil {
		return rejectedOutcome(err), nil
	}

	return s.executor.Execute(ctx, TransactionRequest{
		Module:      ledger.ModulePool,
		Function:    "add_yield",
		Arguments:   []any{address, ledger.U64(base)},
		Type:        models.TransactionTypeAddYield,
		PoolAddress: address,
		Metadata:    s.poolMetadata(info),
	})
}

func (s *poolService) GetPool(ctx context.Context, pool string) (*PoolInfo, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return nil, err
	}
	return readPool(ctx, s.views.View, address)
}

func (s *poolService) GetParticipant(ctx context.Context, pool, account string) (*ParticipantInfo, error) {
	address, err := poolAddress(pool)
	if err != nil {
		return nil, err
	}
	return readParticipant(ctx, s.views.View, address, account)
}

func (s *poolService) ListPools(ctx context.Context) ([]PoolInfo, error) {
	values, err := s.views.View(ctx, ledger.ModulePoolFactory, "get_all_pools")
	if err != nil {
		return nil, err
	}
	addresses, err := stringsAt(values, 0)
	if err != nil {
		return nil, err
	}

	pools := make([]PoolInfo, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, address := range addresses {
		g.Go(func() error {
			info, err := readPool(gctx, s.views.View, address)
			if err != nil {
				return fmt.Errorf("failed to read pool %s: %w", address, err)
			}
			pools[i] = *info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pools, nil
}

func (s *poolService) Balance(ctx context.Context, account string) (uint64, error) {
	values, err := s.views.View(ctx, ledger.ModuleAccount, "get_balance", account)
	if err != nil {
		return 0, err
	}
	return u64At(values, 0)
}

type viewReader func(ctx context.Context, module, name string, args ...any) ([]any, error)

func readPool(ctx context.Context, read viewReader, address string) (*PoolInfo, error) {
	info, err := read(ctx, ledger.ModulePool, "get_pool_info", address)
	if err != nil {
		return nil, err
	}
	state, err := read(ctx, ledger.ModulePool, "get_pool_state", address)
	if err != nil {
		return nil, err
	}
	outcomes, err := read(ctx, ledger.ModulePool, "get_outcomes", address)
	if err != nil {
		return nil, err
	}
	count, err := read(ctx, ledger.ModulePool, "get_participant_count", address)
	if err != nil {
		return nil, err
	}

	var d viewDecoder
	pool := &PoolInfo{
		Address:          address,
		Name:             d.string(info, 0),
		MinEntry:         d.u64(info, 1),
		MaxEntry:         d.u64(info, 2),
		CreatedAt:        int64(d.u64(info, 3)),
		LastDrawAt:       int64(d.u64(info, 4)),
		Phase:            ledger.Phase(d.u64(info, 5)),
		TotalDeposited:   d.u64(info, 6),
		YieldBalance:     d.u64(state, 2),
		StakePending:     d.bool(state, 3),
		Settlement:       d.string(state, 4),
		WinningOutcome:   d.string(state, 5),
		TotalPaidOut:     d.u64(state, 6),
		Shortfall:        d.u64(state, 7),
		Creator:          d.string(state, 8),
		Outcomes:         d.strings(outcomes, 0),
		ParticipantCount: d.u64(count, 0),
		PendingOutcome:   d.string(state, 9),
	}
	if d.err != nil {
		return nil, fmt.Errorf("unexpected pool view for %s: %w", address, d.err)
	}
	pool.Status = pool.Phase.String()
	return pool, nil
}

func readParticipant(ctx context.Context, read viewReader, pool, account string) (*ParticipantInfo, error) {
	normalized, ok := ledger.NormalizeAddress(account)
	if !ok || ledger.IsPoolAddress(normalized) {
		return nil, validationError("invalid account address %q", account)
	}
	values, err := read(ctx, ledger.ModulePool, "get_participant_info", pool, normalized)
	if err != nil {
		return nil, err
	}
	amount, err := u64At(values, 0)
	if err != nil {
		return nil, err
	}
	outcome, err := stringAt(values, 1)
	if err != nil {
		return nil, err
	}
	tickets, err := u64At(values, 2)
	if err != nil {
		return nil, err
	}
	return &ParticipantInfo{Pool: pool, Account: normalized, Amount: amount, Outcome: outcome, Tickets: tickets}, nil
}

func (s *poolService) requireBalance(ctx context.Context, amount uint64) error {
	values, err := s.views.Fresh(ctx, ledger.ModuleAccount, "get_balance", s.executor.Sender())
	if err != nil {
		return err
	}
	balance, err := u64At(values, 0)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("balance %d is below %d: %w", balance, amount, ledger.ErrInsufficientBalance)
	}
	return nil
}

func (s *poolService) baseUnits(amount decimal.Decimal, field string) (uint64, error) {
	base, err := utils.ToBaseUnits(amount, s.token.Decimals)
	if err != nil {
		return 0, validationError("%s: %v", field, err)
	}
	return base, nil
}

func (s *poolService) poolMetadata(info *PoolInfo) []models.TransactionMetadata {
	return []models.TransactionMetadata{
		{Key: MetadataPoolName, Value: info.Name},
		{Key: MetadataToken, Value: s.token.Symbol},
	}
}

func poolAddress(pool string) (string, error) {
	if !ledger.IsPoolAddress(strings.TrimSpace(pool)) {
		return "", validationError("invalid pool address %q", pool)
	}
	return strings.ToLower(strings.TrimSpace(pool)), nil
}
