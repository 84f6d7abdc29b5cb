package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const secondsPerYear = 365 * 24 * 60 * 60

// YieldVenue is the external protocol that holds staked funds and computes yield.
type YieldVenue interface {
	Protocol() ProtocolID
	Supply(ctx context.Context, pool string, amount uint64) error
	// Withdraw returns principal plus whatever yield the venue accrued since stakedAt.
	Withdraw(ctx context.Context, pool string, principal uint64, stakedAt time.Time) (uint64, error)
}

// SimulatedVenue accrues simple interest at a fixed annual rate.
type SimulatedVenue struct {
	id  ProtocolID
	now func() time.Time

	mu      sync.RWMutex
	rateBps uint64
}

func NewSimulatedVenue(id ProtocolID, rateBps uint64, now func() time.Time) *SimulatedVenue {
	if now == nil {
		now = time.Now
	}
	return &SimulatedVenue{id: id, rateBps: rateBps, now: now}
}

func (v *SimulatedVenue) Protocol() ProtocolID { return v.id }

// SetRate changes the rate applied to future withdrawals.
func (v *SimulatedVenue) SetRate(rateBps uint64) {
	v.mu.Lock()
	v.rateBps = rateBps
	v.mu.Unlock()
}

func (v *SimulatedVenue) Supply(ctx context.Context, pool string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%s: cannot supply zero", v.id)
	}
	return ctx.Err()
}

func (v *SimulatedVenue) Withdraw(ctx context.Context, pool string, principal uint64, stakedAt time.Time) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v.mu.RLock()
	rate := v.rateBps
	v.mu.RUnlock()
	return principal + AccruedYield(principal, rate, v.now().Sub(stakedAt)), nil
}

// AccruedYield is principal * bps * elapsed / (10000 * year), floored.
func AccruedYield(principal, rateBps uint64, elapsed time.Duration) uint64 {
	secs := int64(elapsed / time.Second)
	if secs <= 0 || rateBps == 0 || principal == 0 {
		return 0
	}
	num := new(big.Int).SetUint64(principal)
	num.Mul(num, new(big.Int).SetUint64(rateBps))
	num.Mul(num, big.NewInt(secs))
	den := big.NewInt(10000 * secondsPerYear)
	num.Quo(num, den)
	if !num.IsUint64() {
		return 0
	}
	return num.Uint64()
}
