package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EntropySource produces the seed used to draw a winning outcome.
type EntropySource interface {
	Seed(parentHash, pool string, version uint64, timestamp int64) []byte
}

// ChainEntropy hashes the previous committed transaction hash with the pool
// address, the drawing transaction's version and its timestamp. The parent hash
// is fixed before the draw is submitted, so a submitter can predict the seed;
// swap in an external randomness beacon where that matters.
type ChainEntropy struct{}

func (ChainEntropy) Seed(parentHash, pool string, version uint64, timestamp int64) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], version)
	binary.BigEndian.PutUint64(buf[8:], uint64(timestamp))
	return crypto.Keccak256(
		common.FromHex(parentHash),
		common.FromHex(pool),
		buf[:],
	)
}

// FixedEntropy always returns the same seed.
type FixedEntropy []byte

func (f FixedEntropy) Seed(string, string, uint64, int64) []byte {
	return []byte(f)
}
