// Package protocol defines the JSON messages exchanged over the session
// transport and on the flip channels. Every frame carries a "type"
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client → server message types.
const (
	TypeAuth  = "auth"
	TypeFocus = "focus"
	TypeBlur  = "blur"
	TypePing  = "ping"
)

// Server → client message types.
const (
	TypeAuthOK         = "auth_ok"
	TypeFocusOK        = "focus_ok"
	TypeBlurOK         = "blur_ok"
	TypePong           = "pong"
	TypePresenceUpdate = "presence_update"
	TypeError          = "error"
)

// ClientMessage is the decoded form of any client frame.
type ClientMessage struct {
	Type  string   `json:"type"`
	User  string   `json:"user,omitempty"`
	Users []string `json:"users,omitempty"`
}

// ParseClient decodes a client frame. A frame that is not a JSON object, has
// no type, or carries the wrong shape for its fields is rejected here, before
// any handler runs.
func ParseClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("message without type")
	}
	return msg, nil
}

// Status is one user's entry in a snapshot reply.
type Status struct {
	User         string `json:"user"`
	Online       bool   `json:"online"`
	LastActiveMs *int64 `json:"last_active_ms"`
	Bucket       string `json:"bucket"`
}

// AuthOK acknowledges a successful auth and carries the negotiated session
// parameters.
type AuthOK struct {
	Type        string `json:"type"`
	User        string `json:"user"`
	ServerID    string `json:"server_id"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	TTLSeconds  int    `json:"ttl_seconds"`
	LastSeenMs  *int64 `json:"last_seen_ms"`
}

// FocusOK carries the snapshot for the users accepted by a focus call.
type FocusOK struct {
	Type     string   `json:"type"`
	Statuses []Status `json:"statuses"`
}

// BlurOK acknowledges a blur call.
type BlurOK struct {
	Type string `json:"type"`
}

// Pong answers a client-level ping.
type Pong struct {
	Type string `json:"type"`
}

// PresenceUpdate tells an observer that a focused user flipped.
type PresenceUpdate struct {
	Type        string `json:"type"`
	User        string `json:"user"`
	Online      bool   `json:"online"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ErrorMessage is a non-fatal typed error reply; the session stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Flip is the pub/sub payload published on an online/offline transition.
type Flip struct {
	User        string `json:"user"`
	Online      bool   `json:"online"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ParseFlip decodes a flip payload received from a channel subscription.
func ParseFlip(data []byte) (Flip, error) {
	var f Flip
	if err := json.Unmarshal(data, &f); err != nil {
		return Flip{}, fmt.Errorf("malformed flip payload: %w", err)
	}
	if f.User == "" {
		return Flip{}, fmt.Errorf("flip payload without user")
	}
	return f, nil
}

// Errorf builds an error reply.
func Errorf(format string, args ...any) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: fmt.Sprintf(format, args...)}
}
