package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Module names exposed by the node.
const (
	ModuleAccount     = "account"
	ModulePoolFactory = "pool_factory"
	ModulePool        = "pool"
	ModuleStaking     = "pool_staking"
	ModuleManager     = "manager"
)

// FunctionID builds a fully qualified function reference, e.g. "0x5afe::pool::deposit".
func FunctionID(moduleAddress, module, name string) string {
	return fmt.Sprintf("%s::%s::%s", moduleAddress, module, name)
}

// SplitFunctionID splits a fully qualified function reference into its parts.
func SplitFunctionID(function string) (address, module, name string, err error) {
	parts := strings.Split(function, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed function reference %q", function)
	}
	return parts[0], parts[1], parts[2], nil
}

// Payload is the unsigned body of a transaction. Arguments are restricted to
// strings, bools and string slices; u64 values travel as decimal strings so the
// hash survives a JSON round trip.
type Payload struct {
	Sender              string   `json:"sender"`
	SequenceNumber      uint64   `json:"sequence_number,string"`
	ExpirationTimestamp int64    `json:"expiration_timestamp_secs,string"`
	Function            string   `json:"function"`
	TypeArguments       []string `json:"type_arguments"`
	Arguments           []any    `json:"arguments"`
}

// Hash returns the keccak256 hash of the payload's canonical JSON encoding.
func (p Payload) Hash() (string, error) {
	if p.TypeArguments == nil {
		p.TypeArguments = []string{}
	}
	if p.Arguments == nil {
		p.Arguments = []any{}
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return crypto.Keccak256Hash(encoded).Hex(), nil
}

// SignedTransaction is a payload plus a secp256k1 signature over its hash.
type SignedTransaction struct {
	Payload   Payload `json:"payload"`
	Signature string  `json:"signature"`
}

// Hash returns the transaction hash.
func (t SignedTransaction) Hash() (string, error) {
	return t.Payload.Hash()
}

// RecoverSender returns the address that produced the signature.
func (t SignedTransaction) RecoverSender() (string, error) {
	hash, err := t.Hash()
	if err != nil {
		return "", err
	}
	sig, err := hexutil.Decode(t.Signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("%w: signature must be 65 bytes", ErrInvalidSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hexutil.MustDecode(hash), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// PendingTransaction is the handle returned on submission.
type PendingTransaction struct {
	Hash string `json:"hash"`
}

// Event is an entry of a committed transaction's event log.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Change is a state change produced by a committed transaction.
type Change struct {
	Type    string         `json:"type"`
	Address string         `json:"address"`
	Data    map[string]any `json:"data"`
}

// TransactionResult is what WaitForTransaction and GetTransactionByHash return.
type TransactionResult struct {
	Hash           string    `json:"hash"`
	Version        uint64    `json:"version"`
	Sender         string    `json:"sender"`
	SequenceNumber uint64    `json:"sequence_number"`
	Function       string    `json:"function"`
	Success        bool      `json:"success"`
	VMStatus       string    `json:"vm_status"`
	AbortCode      AbortCode `json:"abort_code,omitempty"`
	Events         []Event   `json:"events"`
	Changes        []Change  `json:"changes"`
	Timestamp      int64     `json:"timestamp"`
}

// Err returns the abort carried by a failed result, or nil on success.
func (r *TransactionResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &AbortError{Code: r.AbortCode, Message: r.VMStatus}
}

// EventsNamed returns the events whose type ends in "::"+name, in emission order.
func (r *TransactionResult) EventsNamed(name string) []Event {
	var events []Event
	for _, e := range r.Events {
		if strings.HasSuffix(e.Type, "::"+name) {
			events = append(events, e)
		}
	}
	return events
}

// FindEvent returns the first event named name.
func (r *TransactionResult) FindEvent(name string) (Event, bool) {
	events := r.EventsNamed(name)
	if len(events) == 0 {
		return Event{}, false
	}
	return events[0], true
}

// ViewRequest names a view function and its arguments.
type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// Client is how the rest of the system reaches the ledger.
type Client interface {
	SubmitTransaction(ctx context.Context, tx SignedTransaction) (PendingTransaction, error)
	WaitForTransaction(ctx context.Context, hash string) (*TransactionResult, error)
	GetTransactionByHash(ctx context.Context, hash string) (*TransactionResult, error)
	View(ctx context.Context, req ViewRequest) ([]any, error)
}
