package ledger

import "fmt"

// ProtocolID is the tag of a yield protocol variant.
type ProtocolID uint8

const (
	ProtocolAave    ProtocolID = 0
	ProtocolEchelon ProtocolID = 1
)

// KnownProtocols lists every protocol variant in identifier order.
var KnownProtocols = []ProtocolID{ProtocolAave, ProtocolEchelon}

func (p ProtocolID) String() string {
	switch p {
	case ProtocolAave:
		return "Aave"
	case ProtocolEchelon:
		return "Echelon"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// Valid reports whether p is a known variant.
func (p ProtocolID) Valid() bool {
	for _, known := range KnownProtocols {
		if known == p {
			return true
		}
	}
	return false
}

// ParseProtocol resolves a protocol by name or numeric tag.
func ParseProtocol(s string) (ProtocolID, error) {
	for _, p := range KnownProtocols {
		if s == p.String() || s == fmt.Sprintf("%d", uint8(p)) {
			return p, nil
		}
	}
	switch s {
	case "aave":
		return ProtocolAave, nil
	case "echelon":
		return ProtocolEchelon, nil
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

// SelectBest picks the active entry with the highest rate. Ties go to the lowest
// protocol identifier.
func SelectBest(entries []Protocol) (Protocol, bool) {
	var best Protocol
	found := false
	for _, e := range entries {
		if !e.Active {
			continue
		}
		if !found || e.RateBps > best.RateBps || (e.RateBps == best.RateBps && e.ProtocolID < best.ProtocolID) {
			best = e
			found = true
		}
	}
	return best, found
}
