package cache

import (
	"context"
	"errors"
	"time"
)

// Store is a byte-oriented key value store with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker hands out short-lived exclusive locks, e.g. so one scheduler replica runs a job.
type Locker interface {
	// Acquire returns a release function, or ErrLockHeld if someone else holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

var ErrLockHeld = errors.New("lock is held by another owner")
