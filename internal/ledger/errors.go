package ledger

import (
	"errors"
	"fmt"
)

// AbortCode identifies why an entry function aborted. Aborted transactions are
// committed as failed and leave no state change besides the sequence number bump.
type AbortCode string

const (
	AbortInvalidParams       AbortCode = "E_INVALID_PARAMS"
	AbortPoolNotOpen         AbortCode = "E_POOL_NOT_OPEN"
	AbortInvalidOutcome      AbortCode = "E_INVALID_OUTCOME"
	AbortAlreadyDeposited    AbortCode = "E_ALREADY_DEPOSITED"
	AbortAmountOutOfRange    AbortCode = "E_AMOUNT_OUT_OF_RANGE"
	AbortPoolLocked          AbortCode = "E_POOL_LOCKED"
	AbortNotAParticipant     AbortCode = "E_NOT_A_PARTICIPANT"
	AbortInsufficientBalance AbortCode = "E_INSUFFICIENT_BALANCE"
	AbortPoolNotFound        AbortCode = "E_POOL_NOT_FOUND"
	AbortInvalidPhase        AbortCode = "E_INVALID_PHASE"
	AbortNoActiveProtocol    AbortCode = "E_NO_ACTIVE_PROTOCOL"
	AbortProtocolInactive    AbortCode = "E_PROTOCOL_INACTIVE"
	AbortProtocolNotFound    AbortCode = "E_PROTOCOL_NOT_FOUND"
	AbortNoActivePosition    AbortCode = "E_NO_ACTIVE_POSITION"
	AbortStakeFailed         AbortCode = "E_STAKE_FAILED"
	AbortNotAuthorized       AbortCode = "E_NOT_AUTHORIZED"
	AbortNoWinners           AbortCode = "E_NO_WINNERS"
	AbortFunctionNotFound    AbortCode = "E_FUNCTION_NOT_FOUND"
	AbortOverflow            AbortCode = "E_OVERFLOW"
)

// AbortError is returned by entry handlers to abort the running transaction.
type AbortError struct {
	Code    AbortCode
	Message string
}

func (e *AbortError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AbortError carrying the same code.
func (e *AbortError) Is(target error) bool {
	var other *AbortError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

func abort(code AbortCode, format string, args ...any) *AbortError {
	return &AbortError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel aborts for errors.Is checks.
var (
	ErrInvalidParameters   = &AbortError{Code: AbortInvalidParams}
	ErrPoolNotOpen         = &AbortError{Code: AbortPoolNotOpen}
	ErrInvalidOutcome      = &AbortError{Code: AbortInvalidOutcome}
	ErrAlreadyDeposited    = &AbortError{Code: AbortAlreadyDeposited}
	ErrAmountOutOfRange    = &AbortError{Code: AbortAmountOutOfRange}
	ErrPoolLocked          = &AbortError{Code: AbortPoolLocked}
	ErrNotAParticipant     = &AbortError{Code: AbortNotAParticipant}
	ErrInsufficientBalance = &AbortError{Code: AbortInsufficientBalance}
	ErrPoolNotFound        = &AbortError{Code: AbortPoolNotFound}
	ErrInvalidPhase        = &AbortError{Code: AbortInvalidPhase}
	ErrNoActiveProtocol    = &AbortError{Code: AbortNoActiveProtocol}
	ErrProtocolInactive    = &AbortError{Code: AbortProtocolInactive}
	ErrProtocolNotFound    = &AbortError{Code: AbortProtocolNotFound}
	ErrNoActivePosition    = &AbortError{Code: AbortNoActivePosition}
	ErrNotAuthorized       = &AbortError{Code: AbortNotAuthorized}
	ErrNoWinners           = &AbortError{Code: AbortNoWinners}
	ErrOverflow            = &AbortError{Code: AbortOverflow}
)

// Submission errors. These are returned before execution, so nothing is committed.
var (
	ErrInvalidSignature        = errors.New("invalid transaction signature")
	ErrSequenceNumberTooOld    = errors.New("sequence number too old")
	ErrSequenceNumberTooNew    = errors.New("sequence number too new")
	ErrTransactionExpired      = errors.New("transaction expired")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrViewFunctionNotFound    = errors.New("view function not found")
	ErrInvalidViewArguments    = errors.New("invalid view arguments")
	ErrUnsupportedTypeArgument = errors.New("type arguments are not supported")
)

// AbortCodeOf extracts the abort code carried by err, if any.
func AbortCodeOf(err error) (AbortCode, bool) {
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		return abortErr.Code, true
	}
	return "", false
}
