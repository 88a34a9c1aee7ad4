package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/protocol"
)

// ErrBatchTooLarge rejects oversized snapshot requests before any store
// traffic happens.
var ErrBatchTooLarge = errors.New("snapshot batch too large")

// Snapshotter answers batched presence queries in one store round-trip.
type Snapshotter struct {
	registry *Registry
	maxBatch int
}

func NewSnapshotter(r *Registry, maxBatch int) *Snapshotter {
	return &Snapshotter{registry: r, maxBatch: maxBatch}
}

// Snapshot returns current presence and activity bucket for each user, in
// input order. One pipeline carries a presence GET and a last-active GET per
// user, so the round-trip count does not grow with the list.
func (s *Snapshotter) Snapshot(ctx context.Context, users []string) ([]protocol.Status, error) {
	if len(users) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(users), s.maxBatch)
	}
	if len(users) == 0 {
		return []protocol.Status{}, nil
	}

	pipe := s.registry.store.Pipeline()
	presCmds := make([]*redis.StringCmd, len(users))
	activeCmds := make([]*redis.StringCmd, len(users))
	for i, u := range users {
		presCmds[i] = pipe.Get(ctx, presenceKey(u))
		activeCmds[i] = pipe.Get(ctx, lastActiveKey(u))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	now := s.registry.now()
	statuses := make([]protocol.Status, len(users))
	for i, u := range users {
		online := presCmds[i].Err() == nil
		var lastActive *int64
		if v, err := activeCmds[i].Result(); err == nil {
			if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				lastActive = &ms
			}
		}
		statuses[i] = protocol.Status{
			User:         u,
			Online:       online,
			LastActiveMs: lastActive,
			Bucket:       ActivityBucket(online, lastActive, now),
		}
	}
	return statuses, nil
}
