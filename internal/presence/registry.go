package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

// Registry is the authoritative online truth. A user is online iff their
// presence key exists; the key's value names the owning server and only that
// server may extend or delete it.
type Registry struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewRegistry(s *store.Store, ttl time.Duration) *Registry {
	return &Registry{store: s, ttl: ttl, now: time.Now}
}

// Claim is the result of ClaimOnline.
type Claim struct {
	// BecameOnline is true when the presence key did not exist before the
	// claim, i.e. this claim is an offline→online flip.
	BecameOnline bool
	// LastSeenMs is the recorded end of the user's previous appearance, nil
	// if the user was never seen going offline.
	LastSeenMs *int64
}

// ClaimOnline writes the presence key for user with this server as owner,
// bumps last-active, and reads last-seen, all in one pipeline. A claim always
// succeeds against a key owned by another server: the previous owner's next
// refresh fails and naturally ceases, which is the whole ownership discipline.
func (r *Registry) ClaimOnline(ctx context.Context, user, serverID string) (Claim, error) {
	nowMs := r.now().UnixMilli()
	pipe := r.store.Pipeline()
	setCmd := pipe.SetArgs(ctx, presenceKey(user), serverID, redis.SetArgs{TTL: r.ttl, Get: true})
	pipe.Set(ctx, lastActiveKey(user), strconv.FormatInt(nowMs, 10), 0)
	seenCmd := pipe.Get(ctx, lastSeenKey(user))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Claim{}, fmt.Errorf("claim online %s: %w", user, err)
	}

	claim := Claim{BecameOnline: errors.Is(setCmd.Err(), redis.Nil)}
	if v, err := seenCmd.Result(); err == nil {
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			claim.LastSeenMs = &ms
		}
	}
	return claim, nil
}

// Refresh extends the presence TTL if this server still owns the key, and
// bumps last-active on success. False means ownership moved or the key
// expired; the caller must stop refreshing for this identity.
func (r *Registry) Refresh(ctx context.Context, user, serverID string) (bool, error) {
	ok, err := r.store.RefreshIfOwner(ctx, presenceKey(user), serverID, r.ttl)
	if err != nil || !ok {
		return false, err
	}
	nowMs := strconv.FormatInt(r.now().UnixMilli(), 10)
	if err := r.store.Set(ctx, lastActiveKey(user), nowMs); err != nil {
		return true, err
	}
	return true, nil
}

// ReleaseIfOwned records last-seen and deletes the presence key if this
// server still owns it. True is a clean offline transition (becameOffline);
// exactly one caller can observe it, which is what keeps flips deduplicated.
func (r *Registry) ReleaseIfOwned(ctx context.Context, user, serverID string) (bool, error) {
	nowMs := strconv.FormatInt(r.now().UnixMilli(), 10)
	if err := r.store.Set(ctx, lastSeenKey(user), nowMs); err != nil {
		return false, err
	}
	return r.store.DeleteIfOwner(ctx, presenceKey(user), serverID)
}

// IsOnline reports whether the presence key currently exists.
func (r *Registry) IsOnline(ctx context.Context, user string) (bool, error) {
	return r.store.Exists(ctx, presenceKey(user))
}

// OwnerOf returns the server id owning the user's presence, or "" if the
// user is offline.
func (r *Registry) OwnerOf(ctx context.Context, user string) (string, error) {
	v, ok, err := r.store.Get(ctx, presenceKey(user))
	if err != nil || !ok {
		return "", err
	}
	return v, nil
}
