package session

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// State is the session lifecycle state.
type State int

const (
	// StateConnecting accepts only auth.
	StateConnecting State = iota
	// StateAuthenticated accepts auth (re-auth), focus, blur and ping.
	StateAuthenticated
	// StateClosed is terminal.
	StateClosed
)

// Session is one live connection. All mutable fields are guarded by mu; the
// manager holds mu for the duration of a message handler, so each session
// processes one operation at a time even though store calls suspend inside.
type Session struct {
	id        string
	transport Transport
	ip        string

	mu    sync.Mutex
	state State
	user  string

	// heartbeat bookkeeping, written by the pong handler and the tick loop
	awaitingPong bool
	lastRefresh  time.Time
	// refreshCeded is set when a refresh finds another server owning the
	// presence key; no further refreshes happen until the next auth claim.
	refreshCeded bool

	focusCalls *rollingWindow
}

func newSession(t Transport, ip string, focusLimit int) *Session {
	return &Session{
		id:         ksuid.New().String(),
		transport:  t,
		ip:         ip,
		state:      StateConnecting,
		focusCalls: newRollingWindow(focusLimit, time.Minute),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// User returns the authenticated user key, "" before auth.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// send writes a message, tolerating a transport that closed underneath us:
// the disconnect path is already in flight in that case and will clean up.
func (s *Session) send(v any) {
	_ = s.transport.WriteJSON(v)
}
