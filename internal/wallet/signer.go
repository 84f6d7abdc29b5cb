package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
)

// Signer signs transaction hashes on behalf of an account.
type Signer interface {
	Address() string
	SignHash(hash []byte) ([]byte, error)
}

// KeySigner holds a secp256k1 private key in memory.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewKeySigner parses a hex private key, with or without 0x prefix.
func NewKeySigner(privateKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

func (s *KeySigner) Address() string { return s.address }

func (s *KeySigner) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, s.key)
}

// NewPayload builds a payload that expires after ttl.
func NewPayload(sender, function string, sequence uint64, args []any, ttl time.Duration) ledger.Payload {
	if args == nil {
		args = []any{}
	}
	return ledger.Payload{
		Sender:              sender,
		SequenceNumber:      sequence,
		ExpirationTimestamp: time.Now().Add(ttl).Unix(),
		Function:            function,
		TypeArguments:       []string{},
		Arguments:           args,
	}
}

// Sign signs payload with signer. The payload's sender is set to the signer's address.
func Sign(signer Signer, payload ledger.Payload) (ledger.SignedTransaction, error) {
	payload.Sender = signer.Address()
	hash, err := payload.Hash()
	if err != nil {
		return ledger.SignedTransaction{}, err
	}
	sig, err := signer.SignHash(hexutil.MustDecode(hash))
	if err != nil {
		return ledger.SignedTransaction{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return ledger.SignedTransaction{Payload: payload, Signature: hexutil.Encode(sig)}, nil
}
