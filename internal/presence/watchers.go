package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

// WatcherIndex tracks, per observed user, which servers currently have at
// least one session focused on that user. Used only in targeted routing mode.
// Membership is a hint: entries TTL out if a server forgets to remove itself,
// and each Add re-arms the TTL.
type WatcherIndex struct {
	store *store.Store
	ttl   time.Duration
}

func NewWatcherIndex(s *store.Store, ttl time.Duration) *WatcherIndex {
	return &WatcherIndex{store: s, ttl: ttl}
}

// Add registers serverID as a watcher of each user, one pipeline for the lot.
func (w *WatcherIndex) Add(ctx context.Context, users []string, serverID string) error {
	if len(users) == 0 {
		return nil
	}
	pipe := w.store.Pipeline()
	for _, u := range users {
		pipe.SAdd(ctx, watchersKey(u), serverID)
		pipe.Expire(ctx, watchersKey(u), w.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add watchers: %w", err)
	}
	return nil
}

// Remove drops serverID from each user's watcher set.
func (w *WatcherIndex) Remove(ctx context.Context, users []string, serverID string) error {
	if len(users) == 0 {
		return nil
	}
	pipe := w.store.Pipeline()
	for _, u := range users {
		pipe.SRem(ctx, watchersKey(u), serverID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove watchers: %w", err)
	}
	return nil
}

// Watchers returns the server ids currently interested in user.
func (w *WatcherIndex) Watchers(ctx context.Context, user string) ([]string, error) {
	return w.store.SMembers(ctx, watchersKey(user))
}
