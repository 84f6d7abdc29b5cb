package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountOverflow = errors.New("amount does not fit in u64 base units")
	ErrInvalidAmount  = errors.New("invalid amount")
)

var maxU64 = fromUint64(math.MaxUint64)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// ToBaseUnits converts a display amount into integer base units, truncating any
// precision beyond decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int) (uint64, error) {
	if decimals < 0 {
		return 0, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	base := amount.Shift(int32(decimals)).Truncate(0)
	if base.GreaterThan(maxU64) {
		return 0, ErrAmountOverflow
	}
	return base.BigInt().Uint64(), nil
}

// FromBaseUnits converts base units back to a display amount.
func FromBaseUnits(amount uint64, decimals int) decimal.Decimal {
	return fromUint64(amount).Shift(int32(-decimals))
}

// ParseAmount parses a user-entered decimal string like "12.5".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

// ParseBaseUnits parses a display string straight into base units.
func ParseBaseUnits(s string, decimals int) (uint64, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	return ToBaseUnits(d, decimals)
}

// FormatBaseUnits renders base units with the token's full precision, trailing zeros trimmed.
func FormatBaseUnits(amount uint64, decimals int) string {
	return FromBaseUnits(amount, decimals).String()
}

// FormatAmount renders a display amount rounded to places decimals.
func FormatAmount(amount decimal.Decimal, places int32) string {
	return amount.StringFixed(places)
}
