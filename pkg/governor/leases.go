package governor

import (
	"context"
	"sync"
	"time"
)

// LeaseStore is the backing store for per-account leases. The in-memory
// implementation serves single-process deployments; the Redis store covers
// fleets where several dispatchers share the account pool.
type LeaseStore interface {
	// Acquire takes the lease for accountID if free, returning false when
	// it is already held. The ttl bounds a crashed holder's damage.
	Acquire(ctx context.Context, accountID, token string, ttl time.Duration) (bool, error)

	// Release frees the lease if token still holds it. A stale token is
	// ignored so an expired holder cannot free its successor's lease.
	Release(ctx context.Context, accountID, token string) error
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryLeaseStore keeps leases in process memory.
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

func (s *MemoryLeaseStore) Acquire(_ context.Context, accountID, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	existing, held := s.leases[accountID]
	if held && existing.expiresAt.After(now) {
		return false, nil
	}

	s.leases[accountID] = memoryLease{token: token, expiresAt: now.Add(ttl)}

	return true, nil
}

func (s *MemoryLeaseStore) Release(_ context.Context, accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, held := s.leases[accountID]
	if !held || existing.token != token {
		return nil
	}

	delete(s.leases, accountID)

	return nil
}
