package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestClaimOnlineFirstTime(t *testing.T) {
	s, _ := newTestStore(t)
	reg := NewRegistry(s, 90*time.Second)
	ctx := context.Background()

	claim, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	assert.True(t, claim.BecameOnline)
	assert.Nil(t, claim.LastSeenMs)

	online, err := reg.IsOnline(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, online)

	owner, err := reg.OwnerOf(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "s1", owner)
}

func TestClaimOnlineWhileAlreadyOnline(t *testing.T) {
	s, _ := newTestStore(t)
	reg := NewRegistry(s, 90*time.Second)
	ctx := context.Background()

	_, err := reg.ClaimOnline(ctx, "b@x.io", "s1")
	require.NoError(t, err)

	// reconnect on a different server: ownership moves, no flip
	claim, err := reg.ClaimOnline(ctx, "b@x.io", "s2")
	require.NoError(t, err)
	assert.False(t, claim.BecameOnline)

	owner, err := reg.OwnerOf(ctx, "b@x.io")
	require.NoError(t, err)
	assert.Equal(t, "s2", owner)

	// the old owner's refresh must fail and cease
	ok, err := reg.Refresh(ctx, "b@x.io", "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshKeepsOnline(t *testing.T) {
	s, mr := newTestStore(t)
	reg := NewRegistry(s, 4*time.Second)
	ctx := context.Background()

	_, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)

	mr.FastForward(3 * time.Second)
	ok, err := reg.Refresh(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(3 * time.Second)
	online, err := reg.IsOnline(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestTTLExpiryWithoutRelease(t *testing.T) {
	s, mr := newTestStore(t)
	reg := NewRegistry(s, 4*time.Second)
	ctx := context.Background()

	_, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)

	mr.FastForward(5 * time.Second)

	online, err := reg.IsOnline(ctx, "a@x.io")
	require.NoError(t, err)
	assert.False(t, online)

	// refresh after expiry finds nothing to extend
	ok, err := reg.Refresh(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseIfOwned(t *testing.T) {
	s, _ := newTestStore(t)
	reg := NewRegistry(s, 90*time.Second)
	ctx := context.Background()

	_, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)

	ok, err := reg.ReleaseIfOwned(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	online, err := reg.IsOnline(ctx, "a@x.io")
	require.NoError(t, err)
	assert.False(t, online)

	// second release is a no-op: becameOffline can be observed once
	ok, err = reg.ReleaseIfOwned(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseByNonOwnerDoesNothing(t *testing.T) {
	s, _ := newTestStore(t)
	reg := NewRegistry(s, 90*time.Second)
	ctx := context.Background()

	_, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)

	ok, err := reg.ReleaseIfOwned(ctx, "a@x.io", "s2")
	require.NoError(t, err)
	assert.False(t, ok)

	online, err := reg.IsOnline(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestLastSeenSurfacesOnNextClaim(t *testing.T) {
	s, _ := newTestStore(t)
	reg := NewRegistry(s, 90*time.Second)
	ctx := context.Background()

	_, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	_, err = reg.ReleaseIfOwned(ctx, "a@x.io", "s1")
	require.NoError(t, err)

	claim, err := reg.ClaimOnline(ctx, "a@x.io", "s1")
	require.NoError(t, err)
	assert.True(t, claim.BecameOnline)
	require.NotNil(t, claim.LastSeenMs)
	assert.InDelta(t, time.Now().UnixMilli(), *claim.LastSeenMs, 5000)
}

func TestOwnerOfOffline(t *testing.T) {
	s, _ := newTestStore(t)
	reg := NewRegistry(s, 90*time.Second)

	owner, err := reg.OwnerOf(context.Background(), "nobody@x.io")
	require.NoError(t, err)
	assert.Empty(t, owner)
}
