package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// writeWait bounds every outbound write; a peer that stops draining its
// socket must not pin a session goroutine forever.
const writeWait = 10 * time.Second

var errTransportClosed = errors.New("transport closed")

// wsTransport adapts a websocket connection to the session transport. The
// mutex serializes writes: the reader-loop replies, the heartbeat pings and
// the flip fan-out all write concurrently.
type wsTransport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (t *wsTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return t.conn.Close()
}

// registerWebsocket mounts GET /ws. The upgrade middleware runs in fiber's
// handler chain where the request context is still live, so the client
// address and the token subject are captured into Locals there; the
// websocket handler itself only sees the hijacked connection.
func (s *Server) registerWebsocket() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := strings.TrimSpace(strings.TrimPrefix(c.Query("token"), "Bearer "))
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
		}
		subject, ok := s.verifyToken(token)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		c.Locals("ip", c.IP())
		c.Locals("subject", subject)
		return c.Next()
	})
	s.app.Get("/ws", websocket.New(s.handleSession))
}

func (s *Server) handleSession(c *websocket.Conn) {
	ip, _ := c.Locals("ip").(string)
	subject, _ := c.Locals("subject").(string)

	tr := &wsTransport{conn: c}
	sess, err := s.manager.Connect(tr, ip)
	if err != nil {
		// Connect already closed the transport with the right code
		s.log.Debug("connection rejected", zap.String("ip", ip), zap.Error(err))
		return
	}

	ctx := context.Background()
	defer s.manager.Disconnect(ctx, sess)

	c.SetPongHandler(func(string) error {
		s.manager.HandlePong(ctx, sess)
		return nil
	})

	s.log.Debug("websocket session open",
		zap.String("session", sess.ID()),
		zap.String("subject", subject),
		zap.String("ip", ip))

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.manager.HandleMessage(ctx, sess, data)
	}
}
