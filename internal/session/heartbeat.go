package session

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run drives the background loops: the heartbeat tick, the rate-limit
// janitor, and the flip subscriber. It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.runHeartbeat(ctx)
		return nil
	})
	g.Go(func() error {
		m.runJanitor(ctx)
		return nil
	})
	g.Go(func() error {
		return m.subscriber.Run(ctx)
	})
	return g.Wait()
}

// runHeartbeat pings every session once per interval and terminates sessions
// that did not pong since the previous tick. A fresh session is pinged on its
// first tick and can only be terminated on its second, so every session gets
// a full interval to answer.
func (m *Manager) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.heartbeatTick(ctx)
		}
	}
}

func (m *Manager) heartbeatTick(ctx context.Context) {
	for _, s := range m.snapshotSessions() {
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			continue
		}
		if s.awaitingPong {
			s.mu.Unlock()
			m.log.Info("session missed heartbeat",
				zap.String("session", s.id), zap.String("user", s.User()))
			m.terminate(ctx, s, CloseGoingAway, "heartbeat timeout")
			continue
		}
		s.awaitingPong = true
		s.mu.Unlock()

		if err := s.transport.Ping(); err != nil {
			m.terminate(ctx, s, CloseGoingAway, "transport gone")
		}
	}
}

func (m *Manager) terminate(ctx context.Context, s *Session, code int, reason string) {
	_ = s.transport.Close(code, reason)
	m.Disconnect(ctx, s)
}

// runJanitor prunes expired rate-limit window entries so idle sessions do
// not pin a window's worth of timestamps.
func (m *Manager) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range m.snapshotSessions() {
				s.focusCalls.prune()
			}
		}
	}
}
