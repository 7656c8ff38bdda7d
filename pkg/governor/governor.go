// Package governor is the rate and concurrency authority. It is the only
// component allowed to authorize a new action against an account: it hands
// out per-account leases (never more than one in flight per account, across
// all runners) and produces the randomized pacing delays applied between
// consecutive actions in a batch.
package governor

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// ErrAccountBusy is returned by TryAcquire when the account already holds a
// lease. Callers must treat it as "skip this account this cycle", not as a
// failure.
var ErrAccountBusy = errors.New("account busy")

// Lease is a per-account exclusivity token. It must be released on every
// exit path once acquired.
type Lease struct {
	AccountID string
	token     string
}

// Config tunes lease lifetime and the pacing jitter window.
type Config struct {
	// LeaseTTL bounds how long a crashed holder can block an account.
	LeaseTTL time.Duration

	// JitterMin and JitterSpread define the pacing window: each pause is
	// drawn uniformly from [JitterMin, JitterMin+JitterSpread] so batches
	// never show a uniform, detectable timing pattern.
	JitterMin    time.Duration
	JitterSpread time.Duration
}

// DefaultConfig returns the pacing defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LeaseTTL:     5 * time.Minute,
		JitterMin:    3 * time.Second,
		JitterSpread: 9 * time.Second,
	}
}

type Governor struct {
	leases LeaseStore
	config Config

	// randFloat is injectable for deterministic tests.
	randFloat func() float64
}

func NewGovernor(leases LeaseStore, config Config) *Governor {
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = DefaultConfig().LeaseTTL
	}

	return &Governor{
		leases:    leases,
		config:    config,
		randFloat: rand.Float64,
	}
}

// TryAcquire attempts to take the account's lease. It returns ErrAccountBusy
// when another action is in flight for the account.
func (g *Governor) TryAcquire(ctx context.Context, accountID string) (*Lease, error) {
	token := uuid.New().String()

	ok, err := g.leases.Acquire(ctx, accountID, token, g.config.LeaseTTL)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrAccountBusy
	}

	return &Lease{AccountID: accountID, token: token}, nil
}

// Release returns the account's lease. Releasing an already-expired lease
// is a no-op.
func (g *Governor) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}

	return g.leases.Release(ctx, lease.AccountID, lease.token)
}

// Jitter draws a pacing delay from [JitterMin, JitterMin+JitterSpread].
func (g *Governor) Jitter() time.Duration {
	if g.config.JitterSpread <= 0 {
		return g.config.JitterMin
	}

	return g.config.JitterMin + time.Duration(g.randFloat()*float64(g.config.JitterSpread))
}
