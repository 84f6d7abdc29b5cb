package ledger

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// U64 encodes a u64 argument for the wire.
func U64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

type arguments []any

func (a arguments) count(n int) error {
	if len(a) != n {
		return abort(AbortInvalidParams, "expected %d arguments, got %d", n, len(a))
	}
	return nil
}

func (a arguments) string(i int) (string, error) {
	s, ok := a[i].(string)
	if !ok {
		return "", abort(AbortInvalidParams, "argument %d must be a string", i)
	}
	return s, nil
}

func (a arguments) u64(i int) (uint64, error) {
	s, ok := a[i].(string)
	if !ok {
		return 0, abort(AbortInvalidParams, "argument %d must be a u64 string", i)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, abort(AbortInvalidParams, "argument %d is not a valid u64: %v", i, err)
	}
	return v, nil
}

func (a arguments) u8(i int) (uint8, error) {
	v, err := a.u64(i)
	if err != nil {
		return 0, err
	}
	if v > 255 {
		return 0, abort(AbortInvalidParams, "argument %d does not fit in u8", i)
	}
	return uint8(v), nil
}

func (a arguments) bool(i int) (bool, error) {
	b, ok := a[i].(bool)
	if !ok {
		return false, abort(AbortInvalidParams, "argument %d must be a bool", i)
	}
	return b, nil
}

func (a arguments) strings(i int) ([]string, error) {
	switch v := a[i].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, abort(AbortInvalidParams, "argument %d must be a vector of strings", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, abort(AbortInvalidParams, "argument %d must be a vector of strings", i)
	}
}

// address accepts account addresses (20 bytes) and pool addresses (32 bytes).
func (a arguments) address(i int) (string, error) {
	s, err := a.string(i)
	if err != nil {
		return "", err
	}
	normalized, ok := NormalizeAddress(s)
	if !ok {
		return "", abort(AbortInvalidParams, "argument %d is not an address", i)
	}
	return normalized, nil
}

// NormalizeAddress canonicalizes an account or pool address. Account addresses
// are returned checksummed, pool addresses lower-cased.
func NormalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex(), true
	}
	if IsPoolAddress(s) {
		return strings.ToLower(s), true
	}
	return "", false
}

// IsPoolAddress reports whether s looks like a 32-byte pool address.
func IsPoolAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	hex := s[2:]
	if len(hex) != 2*common.HashLength {
		return false
	}
	for _, c := range hex {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func formatU64(v uint64) string { return strconv.FormatUint(v, 10) }

// addU64 returns a+b and false when the sum does not fit in a u64.
func addU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// ParseU64 reads a u64 from a view or event value. Views return native uint64s
// in process, json.Number or float64 after a JSON hop, and strings from events.
func ParseU64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint8:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %v", n)
		}
		return uint64(n), nil
	case string:
		return strconv.ParseUint(n, 10, 64)
	case fmt.Stringer:
		return strconv.ParseUint(n.String(), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
