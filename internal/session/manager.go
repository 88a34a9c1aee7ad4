package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/config"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/presence"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/protocol"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/userkey"
)

var (
	// ErrTooManyConnections rejects a connection over the per-address cap.
	ErrTooManyConnections = errors.New("connection limit per address reached")
	// ErrShuttingDown rejects connections arriving after shutdown started.
	ErrShuttingDown = errors.New("server shutting down")
)

// Manager drives every session on this server: it owns the hub, the rate
// limits, the heartbeat loop and the flip subscriber, and composes the
// presence registry, watcher index and publisher into the per-message
// handlers.
//
// Handlers run with the session's own mutex held, so a session executes one
// operation at a time; store calls suspend inside the critical section, which
// is safe because nothing else takes that mutex except the heartbeat tick and
// the pong handler.
type Manager struct {
	cfg        config.Config
	log        *zap.Logger
	registry   *presence.Registry
	snap       *presence.Snapshotter
	watchers   *presence.WatcherIndex
	publisher  *presence.Publisher
	hub        *Hub
	subscriber *Subscriber
	ips        *ipCounter

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

func NewManager(cfg config.Config, st *store.Store, log *zap.Logger) *Manager {
	hub := NewHub()
	registry := presence.NewRegistry(st, cfg.PresenceTTL)
	watchers := presence.NewWatcherIndex(st, cfg.WatcherTTL)
	m := &Manager{
		cfg:        cfg,
		log:        log.Named("session"),
		registry:   registry,
		snap:       presence.NewSnapshotter(registry, cfg.MaxSnapshotBatch),
		watchers:   watchers,
		publisher:  presence.NewPublisher(st, watchers, cfg, log),
		hub:        hub,
		subscriber: NewSubscriber(st, hub, cfg, log),
		ips:        newIPCounter(),
		sessions:   make(map[*Session]struct{}),
	}
	return m
}

// Hub exposes the local indexes; the flip subscriber and tests read them.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Connect admits a new transport as a session in Connecting state. The
// per-address cap is enforced here, before any shared resource is touched;
// over-cap transports are closed with a policy code.
func (m *Manager) Connect(t Transport, ip string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = t.Close(CloseGoingAway, "shutting down")
		return nil, ErrShuttingDown
	}
	m.mu.Unlock()

	if !m.ips.tryAcquire(ip, m.cfg.MaxConnectionsPerIP) {
		_ = t.Close(ClosePolicyViolation, "too many connections")
		return nil, ErrTooManyConnections
	}

	s := newSession(t, ip, m.cfg.FocusRatePerMinute)
	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
	m.log.Debug("session connected", zap.String("session", s.id), zap.String("ip", ip))
	return s, nil
}

// HandleMessage processes one client frame.
func (m *Manager) HandleMessage(ctx context.Context, s *Session, data []byte) {
	msg, err := protocol.ParseClient(data)
	if err != nil {
		s.send(protocol.Errorf("malformed message"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}

	switch msg.Type {
	case protocol.TypeAuth:
		m.handleAuthLocked(ctx, s, msg.User)
	case protocol.TypeFocus:
		m.handleFocusLocked(ctx, s, msg.Users)
	case protocol.TypeBlur:
		m.handleBlurLocked(ctx, s, msg.Users)
	case protocol.TypePing:
		if s.state != StateAuthenticated {
			s.send(protocol.Errorf("authenticate first"))
			return
		}
		s.send(protocol.Pong{Type: protocol.TypePong})
	default:
		s.send(protocol.Errorf("unsupported message type %q", msg.Type))
	}
}

func (m *Manager) handleAuthLocked(ctx context.Context, s *Session, raw string) {
	user := userkey.Normalize(raw)
	if !userkey.Valid(user) {
		s.send(protocol.Errorf("invalid user key"))
		return
	}

	if s.user != "" && s.user != user {
		m.detachIdentityLocked(ctx, s)
	}

	m.hub.AddIdentity(user, s)
	claim, err := m.registry.ClaimOnline(ctx, user, m.cfg.ServerID)
	if err != nil {
		m.hub.RemoveIdentity(user, s)
		m.log.Error("claim online failed", zap.String("user", user), zap.Error(err))
		s.send(protocol.Errorf("internal error"))
		// the store is unreachable; this session cannot hold presence
		prev := s.user
		s.user = ""
		s.state = StateClosed
		_ = s.transport.Close(CloseInternalError, "store unavailable")
		m.releaseLocal(ctx, s, prev)
		return
	}

	s.user = user
	s.state = StateAuthenticated
	s.refreshCeded = false
	s.lastRefresh = time.Now()

	s.send(protocol.AuthOK{
		Type:        protocol.TypeAuthOK,
		User:        user,
		ServerID:    m.cfg.ServerID,
		HeartbeatMs: m.cfg.HeartbeatInterval.Milliseconds(),
		TTLSeconds:  int(m.cfg.PresenceTTL.Seconds()),
		LastSeenMs:  claim.LastSeenMs,
	})
	m.log.Info("session authenticated",
		zap.String("session", s.id),
		zap.String("user", user),
		zap.Bool("became_online", claim.BecameOnline))

	if claim.BecameOnline {
		m.publisher.PublishFlip(ctx, user, true)
	}
}

func (m *Manager) handleFocusLocked(ctx context.Context, s *Session, users []string) {
	if s.state != StateAuthenticated {
		s.send(protocol.Errorf("not authenticated"))
		return
	}
	if !s.focusCalls.allow() {
		s.send(protocol.Errorf("focus rate limit exceeded"))
		return
	}

	normalized := make([]string, 0, len(users))
	for _, u := range users {
		n := userkey.Normalize(u)
		if !userkey.Valid(n) {
			s.send(protocol.Errorf("invalid user key in focus list"))
			return
		}
		normalized = append(normalized, n)
	}

	room := m.cfg.MaxFocusPerClient - m.hub.FocusCount(s)
	if room < 0 {
		room = 0
	}
	toAdd, accepted := m.hub.FocusPlan(s, normalized, room)

	// store first, local second: a failed watcher write must not leave the
	// local index claiming interest nobody routes to
	if m.cfg.RoutingMode == config.RoutingTargeted && len(toAdd) > 0 {
		if err := m.watchers.Add(ctx, toAdd, m.cfg.ServerID); err != nil {
			m.log.Error("watcher add failed", zap.Error(err))
			s.send(protocol.Errorf("internal error"))
			return
		}
	}
	m.hub.CommitFocus(s, toAdd)

	statuses, err := m.snap.Snapshot(ctx, accepted)
	if err != nil {
		m.log.Error("focus snapshot failed", zap.Error(err))
		s.send(protocol.Errorf("internal error"))
		return
	}
	s.send(protocol.FocusOK{Type: protocol.TypeFocusOK, Statuses: statuses})
}

func (m *Manager) handleBlurLocked(ctx context.Context, s *Session, users []string) {
	if s.state != StateAuthenticated {
		s.send(protocol.Errorf("not authenticated"))
		return
	}

	normalized := make([]string, 0, len(users))
	for _, u := range users {
		normalized = append(normalized, userkey.Normalize(u))
	}
	lastLocal := m.hub.Blur(s, normalized)
	if m.cfg.RoutingMode == config.RoutingTargeted && len(lastLocal) > 0 {
		// failure tolerated: the watcher TTL evicts the stale entries
		if err := m.watchers.Remove(ctx, lastLocal, m.cfg.ServerID); err != nil {
			m.log.Warn("watcher remove failed", zap.Error(err))
		}
	}
	s.send(protocol.BlurOK{Type: protocol.TypeBlurOK})
}

// HandlePong is called by the transport layer on a liveness pong. Presence
// refresh happens only here, never on client-level ping messages, so refresh
// tracks transport liveness rather than spoofable traffic. The refresh is
// gated on a non-empty focus set: idle observers never pay refresh cost for
// the global population.
func (m *Manager) HandlePong(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.awaitingPong = false

	if s.state != StateAuthenticated || s.refreshCeded {
		return
	}
	if m.hub.FocusCount(s) == 0 {
		return
	}
	if time.Since(s.lastRefresh) < m.cfg.RefreshCooldown() {
		return
	}

	ok, err := m.registry.Refresh(ctx, s.user, m.cfg.ServerID)
	if err != nil {
		m.log.Warn("presence refresh failed", zap.String("user", s.user), zap.Error(err))
		return
	}
	if !ok {
		// another server claimed this user; its TTL is authoritative now
		m.log.Info("presence ownership ceded", zap.String("user", s.user))
		s.refreshCeded = true
		return
	}
	s.lastRefresh = time.Now()
}

// Disconnect finishes a session, clean or not. Idempotent; the reader loop,
// the heartbeat terminator and shutdown may all race into it.
func (m *Manager) Disconnect(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	user := s.user
	s.user = ""
	s.mu.Unlock()

	m.releaseLocal(ctx, s, user)
	m.log.Debug("session disconnected", zap.String("session", s.id), zap.String("user", user))
}

// releaseLocal drops every local trace of s and, when s was the last local
// session for its user, releases presence ownership. Called without s.mu.
func (m *Manager) releaseLocal(ctx context.Context, s *Session, user string) {
	m.ips.release(s.ip)
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()

	lastLocal := m.hub.DetachFocus(s)
	if m.cfg.RoutingMode == config.RoutingTargeted && len(lastLocal) > 0 {
		if err := m.watchers.Remove(ctx, lastLocal, m.cfg.ServerID); err != nil {
			m.log.Warn("watcher remove failed", zap.Error(err))
		}
	}

	if user == "" {
		return
	}
	if m.hub.RemoveIdentity(user, s) {
		becameOffline, err := m.registry.ReleaseIfOwned(ctx, user, m.cfg.ServerID)
		if err != nil {
			m.log.Warn("presence release failed", zap.String("user", user), zap.Error(err))
			return
		}
		if becameOffline {
			m.publisher.PublishFlip(ctx, user, false)
		}
	}
}

func (m *Manager) detachIdentityLocked(ctx context.Context, s *Session) {
	prev := s.user
	s.user = ""
	s.refreshCeded = false
	if !m.hub.RemoveIdentity(prev, s) {
		return
	}
	becameOffline, err := m.registry.ReleaseIfOwned(ctx, prev, m.cfg.ServerID)
	if err != nil {
		m.log.Warn("presence release failed", zap.String("user", prev), zap.Error(err))
		return
	}
	if becameOffline {
		m.publisher.PublishFlip(ctx, prev, false)
	}
}

// Shutdown stops admitting sessions and closes every live transport. No
// per-session release happens here: the presence TTL retires the keys, which
// keeps shutdown O(sessions) with zero store traffic.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[*Session]struct{})
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		_ = s.transport.Close(CloseGoingAway, "server shutting down")
	}
	m.log.Info("session manager shut down", zap.Int("sessions_closed", len(sessions)))
}

func (m *Manager) snapshotSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		out = append(out, s)
	}
	return out
}
