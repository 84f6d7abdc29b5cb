package services

import "github.com/rxtech-lab/safebet-mcp/internal/ledger"

type OutcomeStatus string

const (
	OutcomeSuccess  OutcomeStatus = "success"
	OutcomeRejected OutcomeStatus = "rejected"

	// OutcomeUnknownPending means the transaction may or may not have applied.
	OutcomeUnknownPending OutcomeStatus = "unknown_pending"
)

// Outcome is what every fund-moving call reports.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Kind    ErrorKind     `json:"kind,omitempty"`
	Message string        `json:"message,omitempty"`
	Hash    string        `json:"hash,omitempty"`
	// RecordID points at the stored transaction record, when one was written.
	RecordID string `json:"record_id,omitempty"`
	// Degraded marks a success whose follow-up work (mirror sync, staking) did not complete.
	Degraded    bool                      `json:"degraded,omitempty"`
	PoolAddress string                    `json:"pool_address,omitempty"`
	Result      *ledger.TransactionResult `json:"result,omitempty"`
	Err         error                     `json:"-"`
}

func (o *Outcome) Succeeded() bool { return o != nil && o.Status == OutcomeSuccess }

// rejectedOutcome reports an operation stopped before or by the ledger.
func rejectedOutcome(err error) *Outcome {
	return &Outcome{
		Status:  OutcomeRejected,
		Kind:    KindOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

func unknownOutcome(hash, recordID string, err error) *Outcome {
	return &Outcome{
		Status:   OutcomeUnknownPending,
		Kind:     ErrorKindTransport,
		Message:  ErrOutcomeUnknown.Error(),
		Hash:     hash,
		RecordID: recordID,
		Err:      err,
	}
}

// degrade marks a successful outcome as partially failed.
func (o *Outcome) degrade(err error) {
	o.Degraded = true
	o.Kind = ErrorKindPartialFailure
	o.Message = err.Error()
	o.Err = err
}
