// Package lock provides short-lived, token-owned leases used to serialize
// mutations of a single learning session across processes.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when another holder owns the lease.
var ErrBusy = errors.New("lock held by another owner")

// Release gives the lease back. Releasing a lease that already expired and was
// taken by someone else is a no-op.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

func newToken() string { return uuid.NewString() }

// Noop never contends. Used when a single process owns the database.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
