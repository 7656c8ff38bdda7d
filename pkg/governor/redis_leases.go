package governor

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease key only when the caller still owns it,
// so an expired holder cannot free a lease reacquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLeaseStore backs account leases with Redis SET NX, letting multiple
// dispatcher processes share one account pool without double-driving a
// session.
type RedisLeaseStore struct {
	client *redis.Client
	prefix string
}

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{
		client: client,
		prefix: "flock:lease:",
	}
}

func (s *RedisLeaseStore) key(accountID string) string {
	return s.prefix + accountID
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, accountID, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(accountID), token, ttl).Result()
}

func (s *RedisLeaseStore) Release(ctx context.Context, accountID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(accountID)}, token).Err()
}
