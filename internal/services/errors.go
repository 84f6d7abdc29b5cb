package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
)

// ErrorKind classifies a failed operation for callers and logs.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindPrecondition   ErrorKind = "precondition"
	ErrorKindTransport      ErrorKind = "transport"
	ErrorKindPartialFailure ErrorKind = "partial_failure"
	ErrorKindAuthorization  ErrorKind = "authorization"
	ErrorKindInvariant      ErrorKind = "invariant"
	ErrorKindUnknown        ErrorKind = "unknown"
)

var (
	// ErrAddressNotFound means the pool was created but its address could not be read
	// from the transaction result. It is not a creation failure.
	ErrAddressNotFound = errors.New("pool address not found in transaction result")
	ErrValidation      = errors.New("validation failed")
	ErrRecordNotFound  = errors.New("transaction record not found")
	ErrOutcomeUnknown  = errors.New("transaction outcome unknown, verify before retrying")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

var abortKinds = map[ledger.AbortCode]ErrorKind{
	ledger.AbortInvalidParams:       ErrorKindValidation,
	ledger.AbortInvalidOutcome:      ErrorKindValidation,
	ledger.AbortAmountOutOfRange:    ErrorKindValidation,
	ledger.AbortFunctionNotFound:    ErrorKindValidation,
	ledger.AbortProtocolNotFound:    ErrorKindValidation,
	ledger.AbortPoolNotOpen:         ErrorKindPrecondition,
	ledger.AbortAlreadyDeposited:    ErrorKindPrecondition,
	ledger.AbortPoolLocked:          ErrorKindPrecondition,
	ledger.AbortNotAParticipant:     ErrorKindPrecondition,
	ledger.AbortInsufficientBalance: ErrorKindPrecondition,
	ledger.AbortPoolNotFound:        ErrorKindPrecondition,
	ledger.AbortInvalidPhase:        ErrorKindPrecondition,
	ledger.AbortNoActiveProtocol:    ErrorKindPrecondition,
	ledger.AbortProtocolInactive:    ErrorKindPrecondition,
	ledger.AbortStakeFailed:         ErrorKindPrecondition,
	ledger.AbortNotAuthorized:       ErrorKindAuthorization,
	ledger.AbortNoWinners:           ErrorKindInvariant,
	ledger.AbortNoActivePosition:    ErrorKindInvariant,
	ledger.AbortOverflow:            ErrorKindInvariant,
}

// KindOf maps err to an ErrorKind. Unrecognized errors are ErrorKindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if code, ok := ledger.AbortCodeOf(err); ok {
		if kind, ok := abortKinds[code]; ok {
			return kind
		}
		return ErrorKindUnknown
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ledger.ErrUnsupportedTypeArgument),
		errors.Is(err, ledger.ErrViewFunctionNotFound),
		errors.Is(err, ledger.ErrInvalidViewArguments):
		return ErrorKindValidation
	case errors.Is(err, ledger.ErrSequenceNumberTooOld),
		errors.Is(err, ledger.ErrSequenceNumberTooNew),
		errors.Is(err, ledger.ErrTransactionExpired):
		return ErrorKindPrecondition
	case errors.Is(err, ledger.ErrInvalidSignature):
		return ErrorKindAuthorization
	case errors.Is(err, ErrAddressNotFound):
		return ErrorKindPartialFailure
	case errors.Is(err, ErrOutcomeUnknown),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ErrorKindTransport
	}
	return ErrorKindUnknown
}
