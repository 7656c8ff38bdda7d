package cmd

import (
	"fmt"

	"github.com/beaconops/flock/pkg/governor"
	"github.com/redis/go-redis/v9"
)

// NewLeaseStore selects the lease backend. A redis URL enables fleet-wide
// account exclusivity; an empty URL keeps leases in process memory.
func NewLeaseStore(redisURL string) governor.LeaseStore {
	if redisURL == "" {
		return governor.NewMemoryLeaseStore()
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	return governor.NewRedisLeaseStore(redis.NewClient(options))
}
