package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/wallet"
	"go.uber.org/zap"
)

type ExecutorConfig struct {
	SubmitTimeout time.Duration
	WaitTimeout   time.Duration
	// TxTTL is how long a signed payload stays valid.
	TxTTL time.Duration
}

// TransactionRequest names an entry function of the ledger module and its arguments.
type TransactionRequest struct {
	Module      string
	Function    string
	Arguments   []any
	Type        models.TransactionType
	PoolAddress string
	Metadata    []models.TransactionMetadata
}

// TransactionExecutor signs, submits and confirms transactions, records them and
// runs the mirror hooks after a successful commit.
type TransactionExecutor interface {
	Sender() string
	Execute(ctx context.Context, req TransactionRequest) (*Outcome, error)
	// Relay submits a transaction signed elsewhere, e.g. by a user's wallet.
	Relay(ctx context.Context, signed ledger.SignedTransaction, metadata []models.TransactionMetadata) (*Outcome, error)
	// Verify re-reads the ledger for hash and settles its record. Call it before
	// resubmitting anything that ended unknown_pending.
	Verify(ctx context.Context, hash string) (*Outcome, error)
}

type transactionExecutor struct {
	client    ledger.Client
	signer    wallet.Signer
	views     ViewService
	txService TransactionService
	hooks     HookService
	cfg       ExecutorConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewTransactionExecutor(client ledger.Client, signer wallet.Signer, views ViewService, txService TransactionService, hooks HookService, cfg ExecutorConfig, logger *zap.Logger) TransactionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hooks == nil {
		hooks = NewHookService()
	}
	if cfg.TxTTL <= 0 {
		cfg.TxTTL = 2 * time.Minute
	}
	return &transactionExecutor{
		client:    client,
		signer:    signer,
		views:     views,
		txService: txService,
		hooks:     hooks,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *transactionExecutor) Sender() string { return e.signer.Address() }

func (e *transactionExecutor) Execute(ctx context.Context, req TransactionRequest) (*Outcome, error) {
	function := ledger.FunctionID(e.views.ModuleAddress(), req.Module, req.Function)
	signed, err := e.sign(ctx, function, req.Arguments)
	if err != nil {
		return rejectedOutcome(err), nil
	}

	txType := req.Type
	if txType == "" {
		txType = TransactionTypeOf(function)
	}
	record := &models.TransactionRecord{
		Function:        function,
		TransactionType: txType,
		Sender:          e.signer.Address(),
		PoolAddress:     req.PoolAddress,
		Metadata:        req.Metadata,
	}
	if err := e.stamp(record, signed); err != nil {
		return nil, err
	}
	if _, err := e.txService.CreateTransactionRecord(ctx, record); err != nil {
		return nil, err
	}

	err = e.submit(ctx, signed)
	if errors.Is(err, ledger.ErrSequenceNumberTooOld) {
		// Another transaction from this signer landed first. Nothing was applied, re-sign once.
		e.logger.Info("sequence number consumed, re-signing",
			zap.String("function", function),
			zap.String("record_id", record.ID),
		)
		signed, err = e.sign(ctx, function, req.Arguments)
		if err != nil {
			return e.reject(ctx, record, err), nil
		}
		if err := e.stamp(record, signed); err != nil {
			return nil, err
		}
		if err := e.txService.UpdateTransactionRecord(ctx, record.ID, map[string]any{
			"hash":       record.Hash,
			"expires_at": record.ExpiresAt,
		}); err != nil {
			return nil, err
		}
		err = e.submit(ctx, signed)
	}
	return e.await(ctx, record, err), nil
}

func (e *transactionExecutor) Relay(ctx context.Context, signed ledger.SignedTransaction, metadata []models.TransactionMetadata) (*Outcome, error) {
	hash, err := signed.Hash()
	if err != nil {
		return rejectedOutcome(validationError("%v", err)), nil
	}
	if existing, err := e.txService.GetTransactionRecordByHash(ctx, hash); err == nil && existing.Status != models.TransactionStatusFailed {
		return e.Verify(ctx, hash)
	}

	record := &models.TransactionRecord{
		Function:        signed.Payload.Function,
		TransactionType: TransactionTypeOf(signed.Payload.Function),
		Sender:          signed.Payload.Sender,
		PoolAddress:     poolArgument(signed.Payload.Arguments),
		Metadata:        metadata,
	}
	if err := e.stamp(record, signed); err != nil {
		return nil, err
	}
	if _, err := e.txService.CreateTransactionRecord(ctx, record); err != nil {
		return nil, err
	}
	return e.await(ctx, record, e.submit(ctx, signed)), nil
}

func (e *transactionExecutor) Verify(ctx context.Context, hash string) (*Outcome, error) {
	record, err := e.txService.GetTransactionRecordByHash(ctx, hash)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	lookupCtx, cancel := withTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()
	result, err := e.client.GetTransactionByHash(lookupCtx, hash)
	switch {
	case errors.Is(err, ledger.ErrTransactionNotFound):
		if record != nil && e.now().After(record.ExpiresAt) {
			// The payload can no longer commit, so resubmitting is safe.
			if err := e.txService.UpdateTransactionStatus(ctx, record.ID, models.TransactionStatusFailed, "expired without commit", ""); err != nil {
				return nil, err
			}
			outcome := rejectedOutcome(ledger.ErrTransactionExpired)
			outcome.Hash, outcome.RecordID = hash, record.ID
			return outcome, nil
		}
		outcome := unknownOutcome(hash, "", ErrOutcomeUnknown)
		if record != nil {
			outcome.RecordID = record.ID
		}
		return outcome, nil
	case err != nil:
		outcome := unknownOutcome(hash, "", err)
		if record != nil {
			outcome.RecordID = record.ID
		}
		return outcome, nil
	}

	if record == nil {
		return outcomeOf(result), nil
	}
	if record.Status == models.TransactionStatusConfirmed && record.MirrorStatus != models.MirrorStatusFailed {
		outcome := outcomeOf(result)
		outcome.RecordID = record.ID
		outcome.PoolAddress = record.PoolAddress
		return outcome, nil
	}
	return e.complete(ctx, record, result), nil
}

func (e *transactionExecutor) sign(ctx context.Context, function string, args []any) (ledger.SignedTransaction, error) {
	values, err := e.views.Fresh(ctx, ledger.ModuleAccount, "get_sequence_number", e.signer.Address())
	if err != nil {
		return ledger.SignedTransaction{}, fmt.Errorf("failed to read sequence number: %w", err)
	}
	seq, err := u64At(values, 0)
	if err != nil {
		return ledger.SignedTransaction{}, err
	}
	return wallet.Sign(e.signer, wallet.NewPayload("", function, seq, args, e.cfg.TxTTL))
}

func (e *transactionExecutor) stamp(record *models.TransactionRecord, signed ledger.SignedTransaction) error {
	hash, err := signed.Hash()
	if err != nil {
		return err
	}
	record.Hash = hash
	record.ExpiresAt = time.Unix(signed.Payload.ExpirationTimestamp, 0)
	return nil
}

func (e *transactionExecutor) submit(ctx context.Context, signed ledger.SignedTransaction) error {
	submitCtx, cancel := withTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()
	_, err := e.client.SubmitTransaction(submitCtx, signed)
	return err
}

// await turns a submission into an outcome. Timeouts leave the record unknown.
func (e *transactionExecutor) await(ctx context.Context, record *models.TransactionRecord, submitErr error) *Outcome {
	if submitErr != nil {
		if isTimeout(submitErr) {
			return e.markUnknown(ctx, record, submitErr)
		}
		return e.reject(ctx, record, submitErr)
	}

	waitCtx, cancel := withTimeout(ctx, e.cfg.WaitTimeout)
	defer cancel()
	result, err := e.client.WaitForTransaction(waitCtx, record.Hash)
	if err != nil {
		return e.markUnknown(ctx, record, err)
	}
	return e.complete(ctx, record, result)
}

func (e *transactionExecutor) reject(ctx context.Context, record *models.TransactionRecord, err error) *Outcome {
	if updateErr := e.txService.UpdateTransactionStatus(ctx, record.ID, models.TransactionStatusFailed, err.Error(), ""); updateErr != nil {
		e.logger.Error("failed to update transaction record", zap.String("record_id", record.ID), zap.Error(updateErr))
	}
	outcome := rejectedOutcome(err)
	outcome.Hash, outcome.RecordID = record.Hash, record.ID
	return outcome
}

func (e *transactionExecutor) markUnknown(ctx context.Context, record *models.TransactionRecord, err error) *Outcome {
	e.logger.Warn("transaction outcome unknown",
		zap.String("hash", record.Hash),
		zap.String("function", record.Function),
		zap.String("pool", record.PoolAddress),
		zap.Error(err),
	)
	if updateErr := e.txService.UpdateTransactionStatus(context.WithoutCancel(ctx), record.ID, models.TransactionStatusUnknown, "", ""); updateErr != nil {
		e.logger.Error("failed to update transaction record", zap.String("record_id", record.ID), zap.Error(updateErr))
	}
	return unknownOutcome(record.Hash, record.ID, err)
}

// complete settles the record of a committed transaction and, on success, runs the hooks.
func (e *transactionExecutor) complete(ctx context.Context, record *models.TransactionRecord, result *ledger.TransactionResult) *Outcome {
	outcome := outcomeOf(result)
	outcome.RecordID = record.ID

	if !result.Success {
		if err := e.txService.UpdateTransactionStatus(ctx, record.ID, models.TransactionStatusFailed, result.VMStatus, string(result.AbortCode)); err != nil {
			e.logger.Error("failed to update transaction record", zap.String("record_id", record.ID), zap.Error(err))
		}
		// a checkpoint that committed before the abort still moved ledger state
		if len(result.Changes) > 0 {
			if err := e.views.Invalidate(ctx, touchedScopes(record, result)...); err != nil {
				e.logger.Warn("failed to invalidate cached views", zap.String("hash", record.Hash), zap.Error(err))
			}
			_ = e.syncMirror(ctx, record, result)
		}
		return outcome
	}

	updates := map[string]any{
		"status":     models.TransactionStatusConfirmed,
		"vm_status":  result.VMStatus,
		"abort_code": "",
		"result":     mainEventData(result),
	}
	if record.TransactionType == models.TransactionTypePoolCreation && record.PoolAddress == "" {
		address, err := ExtractPoolAddress(result, e.views.ModuleAddress())
		if err != nil {
			e.logger.Warn("pool created without a readable address",
				zap.String("hash", record.Hash),
				zap.String("kind", string(ErrorKindPartialFailure)),
			)
			updates["mirror_status"] = models.MirrorStatusSkipped
			updates["mirror_error"] = err.Error()
			if updateErr := e.txService.UpdateTransactionRecord(ctx, record.ID, updates); updateErr != nil {
				e.logger.Error("failed to update transaction record", zap.String("record_id", record.ID), zap.Error(updateErr))
			}
			outcome.degrade(err)
			return outcome
		}
		record.PoolAddress = address
		updates["pool_address"] = address
	}
	record.Status = models.TransactionStatusConfirmed
	if err := e.txService.UpdateTransactionRecord(ctx, record.ID, updates); err != nil {
		e.logger.Error("failed to update transaction record", zap.String("record_id", record.ID), zap.Error(err))
	}
	outcome.PoolAddress = record.PoolAddress

	if err := e.views.Invalidate(ctx, touchedScopes(record, result)...); err != nil {
		e.logger.Warn("failed to invalidate cached views", zap.String("hash", record.Hash), zap.Error(err))
	}

	if err := e.syncMirror(ctx, record, result); err != nil {
		outcome.degrade(fmt.Errorf("mirror sync failed: %w", err))
	}
	return outcome
}

func (e *transactionExecutor) syncMirror(ctx context.Context, record *models.TransactionRecord, result *ledger.TransactionResult) error {
	if !e.hooks.CanHandle(record.TransactionType) {
		return e.txService.UpdateMirrorStatus(ctx, record.ID, models.MirrorStatusSkipped, nil)
	}
	hookErr := e.hooks.OnTransactionConfirmed(ctx, record.TransactionType, result, *record)
	if hookErr != nil {
		e.logger.Warn("mirror sync failed",
			zap.String("kind", string(ErrorKindPartialFailure)),
			zap.String("pool", record.PoolAddress),
			zap.String("hash", record.Hash),
			zap.String("transaction_type", string(record.TransactionType)),
			zap.Error(hookErr),
		)
		if err := e.txService.UpdateMirrorStatus(ctx, record.ID, models.MirrorStatusFailed, hookErr); err != nil {
			e.logger.Error("failed to update transaction record", zap.String("record_id", record.ID), zap.Error(err))
		}
		return hookErr
	}
	return e.txService.UpdateMirrorStatus(ctx, record.ID, models.MirrorStatusSynced, nil)
}

// ExtractPoolAddress reads a created pool's address from the result's events,
// then from its resource changes.
func ExtractPoolAddress(result *ledger.TransactionResult, moduleAddress string) (string, error) {
	if event, ok := result.FindEvent("PoolCreatedEvent"); ok {
		if address, ok := ledger.NormalizeAddress(eventString(event, "pool_address")); ok && ledger.IsPoolAddress(address) {
			return address, nil
		}
	}
	poolType := strings.ToLower(ledger.FunctionID(moduleAddress, ledger.ModulePool, "Pool"))
	for _, change := range result.Changes {
		resourceType, _ := change.Data["type"].(string)
		if change.Type == "write_resource" && strings.ToLower(resourceType) == poolType && ledger.IsPoolAddress(change.Address) {
			return strings.ToLower(change.Address), nil
		}
	}
	return "", ErrAddressNotFound
}

// TransactionTypeOf classifies a fully qualified function reference.
func TransactionTypeOf(function string) models.TransactionType {
	_, module, name, err := ledger.SplitFunctionID(function)
	if err != nil {
		return models.TransactionTypeRegular
	}
	switch module + "::" + name {
	case ledger.ModulePoolFactory + "::create_pool":
		return models.TransactionTypePoolCreation
	case ledger.ModulePool + "::deposit":
		return models.TransactionTypeDeposit
	case ledger.ModulePool + "::withdraw":
		return models.TransactionTypeWithdraw
	case ledger.ModulePool + "::add_yield":
		return models.TransactionTypeAddYield
	case ledger.ModuleManager + "::lock_and_stake":
		return models.TransactionTypeLockAndStake
	case ledger.ModuleManager + "::retry_stake":
		return models.TransactionTypeRetryStake
	case ledger.ModuleManager + "::auto_resolve":
		return models.TransactionTypeAutoResolve
	case ledger.ModuleManager + "::resolve_and_distribute":
		return models.TransactionTypeResolveAndDistribute
	case ledger.ModuleManager + "::complete_settlement":
		return models.TransactionTypeCompleteSettlement
	case ledger.ModuleStaking + "::stake_to_best_protocol",
		ledger.ModuleStaking + "::stake_to_protocol",
		ledger.ModuleStaking + "::stake_to_aave",
		ledger.ModuleStaking + "::stake_to_echelon":
		return models.TransactionTypeStake
	case ledger.ModuleStaking + "::unstake":
		return models.TransactionTypeUnstake
	}
	if module == ledger.ModuleStaking {
		return models.TransactionTypeProtocolUpdate
	}
	return models.TransactionTypeRegular
}

func outcomeOf(result *ledger.TransactionResult) *Outcome {
	if !result.Success {
		outcome := rejectedOutcome(result.Err())
		outcome.Hash = result.Hash
		outcome.Result = result
		return outcome
	}
	return &Outcome{Status: OutcomeSuccess, Hash: result.Hash, Result: result}
}

// mainEventData keeps the data of the transaction's last event for the record.
func mainEventData(result *ledger.TransactionResult) models.JSON {
	if len(result.Events) == 0 {
		return models.JSON{}
	}
	last := result.Events[len(result.Events)-1]
	data := models.JSON{"event": last.Type}
	for k, v := range last.Data {
		data[k] = v
	}
	return data
}

// touchedScopes lists the addresses whose cached views a committed transaction may have changed.
func touchedScopes(record *models.TransactionRecord, result *ledger.TransactionResult) []string {
	scopes := []string{record.Sender}
	if record.PoolAddress != "" {
		scopes = append(scopes, record.PoolAddress)
	}
	for _, event := range result.Events {
		for _, v := range event.Data {
			if s, ok := v.(string); ok {
				if _, ok := ledger.NormalizeAddress(s); ok {
					scopes = append(scopes, s)
				}
			}
		}
	}
	return scopes
}

func poolArgument(args []any) string {
	if len(args) == 0 {
		return ""
	}
	if s, ok := args[0].(string); ok && ledger.IsPoolAddress(s) {
		return strings.ToLower(s)
	}
	return ""
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
