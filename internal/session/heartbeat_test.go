package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/presence"
)

func TestHeartbeatPingsThenTerminatesSilentSessions(t *testing.T) {
	m, _, _ := newTestManager(t, testManagerConfig())
	ctx := context.Background()
	s, tr := mustConnect(t, m, "10.0.0.1")
	authAs(t, m, s, "a@x.io")

	// first tick: mark awaiting and ping
	m.heartbeatTick(ctx)
	assert.False(t, tr.isClosed())
	tr.mu.Lock()
	assert.Equal(t, 1, tr.pings)
	tr.mu.Unlock()

	// no pong arrives: second tick terminates
	m.heartbeatTick(ctx)
	assert.True(t, tr.isClosed())
	assert.Equal(t, StateClosed, s.State())
}

func TestHeartbeatSurvivesWithPongs(t *testing.T) {
	m, _, _ := newTestManager(t, testManagerConfig())
	ctx := context.Background()
	s, tr := mustConnect(t, m, "10.0.0.1")
	authAs(t, m, s, "a@x.io")

	for i := 0; i < 3; i++ {
		m.heartbeatTick(ctx)
		m.HandlePong(ctx, s)
	}
	assert.False(t, tr.isClosed())
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestPongRefreshGatedOnFocus(t *testing.T) {
	m, _, mr := newTestManager(t, testManagerConfig())
	ctx := context.Background()
	s, _ := mustConnect(t, m, "10.0.0.1")
	authAs(t, m, s, "a@x.io")

	// empty focus set: the pong path must not refresh even long past the
	// cooldown
	s.mu.Lock()
	s.lastRefresh = time.Now().Add(-time.Hour)
	s.mu.Unlock()
	mr.FastForward(6 * time.Second)
	m.HandlePong(ctx, s)
	assert.Equal(t, 4*time.Second, mr.TTL("presence:user:a@x.io"))

	// focused: same pong refreshes the TTL back to full
	focusOn(t, m, s, "b@x.io")
	m.HandlePong(ctx, s)
	assert.Equal(t, 10*time.Second, mr.TTL("presence:user:a@x.io"))
}

func TestPongRefreshHonoursCooldown(t *testing.T) {
	m, _, mr := newTestManager(t, testManagerConfig())
	ctx := context.Background()
	s, _ := mustConnect(t, m, "10.0.0.1")
	authAs(t, m, s, "a@x.io")
	focusOn(t, m, s, "b@x.io")

	// lastRefresh was just set by auth; within the cooldown nothing happens
	mr.FastForward(3 * time.Second)
	m.HandlePong(ctx, s)
	assert.Equal(t, 7*time.Second, mr.TTL("presence:user:a@x.io"))
}

func TestPongStopsRefreshingAfterOwnershipMoves(t *testing.T) {
	m, st, mr := newTestManager(t, testManagerConfig())
	ctx := context.Background()
	s, _ := mustConnect(t, m, "10.0.0.1")
	authAs(t, m, s, "a@x.io")
	focusOn(t, m, s, "b@x.io")

	// another server claims the user behind our back
	reg := presence.NewRegistry(st, 10*time.Second)
	_, err := reg.ClaimOnline(ctx, "a@x.io", "s2")
	require.NoError(t, err)

	s.mu.Lock()
	s.lastRefresh = time.Now().Add(-time.Hour)
	s.mu.Unlock()
	m.HandlePong(ctx, s)

	s.mu.Lock()
	assert.True(t, s.refreshCeded)
	s.mu.Unlock()
	owner, err := mr.Get("presence:user:a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "s2", owner)

	// a later re-auth claims back and clears the ceded flag
	authAs(t, m, s, "a@x.io")
	s.mu.Lock()
	assert.False(t, s.refreshCeded)
	s.mu.Unlock()
}
