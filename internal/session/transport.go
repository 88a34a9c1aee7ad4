// Package session hosts the per-process side of the presence fabric: the
// per-connection state machine, the local session and focus indexes, rate
// limits, the heartbeat loop, and the flip subscriber.
package session

// Close codes passed to Transport.Close. Values follow RFC 6455.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Transport is the bidirectional message channel a session runs over. The
// websocket layer implements it; tests substitute fakes. Writes may race with
// the peer closing; implementations return an error for a closed transport
// and callers swallow it.
type Transport interface {
	// WriteJSON sends one message. Safe for concurrent use.
	WriteJSON(v any) error
	// Ping sends a transport-level liveness probe; the peer answers with a
	// pong outside the message stream.
	Ping() error
	// Close tears the transport down with a close code. Idempotent.
	Close(code int, reason string) error
}
