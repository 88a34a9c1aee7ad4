package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Owner-guarded mutation runs server-side so the check and the write cannot
// interleave with another server's claim. An ownership mismatch is the scalar
// 0, not an error; script execution failures are surfaced to the caller.
var (
	refreshIfOwnerScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("expire", KEYS[1], ARGV[2])
else
  return 0
end`)

	deleteIfOwnerScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)
)

// RefreshIfOwner extends key's TTL only if its current value equals owner.
func (s *Store) RefreshIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshIfOwnerScript.Run(ctx, s.rdb, []string{key}, owner, int64(ttl.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("refresh_if_owner %s: %w", key, err)
	}
	return n == 1, nil
}

// DeleteIfOwner deletes key only if its current value equals owner.
func (s *Store) DeleteIfOwner(ctx context.Context, key, owner string) (bool, error) {
	n, err := deleteIfOwnerScript.Run(ctx, s.rdb, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("delete_if_owner %s: %w", key, err)
	}
	return n == 1, nil
}
