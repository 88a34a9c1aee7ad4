package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/userkey"
)

const knownUsersKey = "users:known"

// UserRegistry is the set of user keys allowed to log in. It lives in the
// shared store so every server hands out tokens for the same population.
type UserRegistry struct {
	store *store.Store
}

func NewUserRegistry(st *store.Store) *UserRegistry {
	return &UserRegistry{store: st}
}

func (r *UserRegistry) Register(ctx context.Context, users ...string) error {
	return r.store.SAdd(ctx, knownUsersKey, users...)
}

func (r *UserRegistry) Known(ctx context.Context, user string) (bool, error) {
	return r.store.SIsMember(ctx, knownUsersKey, user)
}

// SeedUsers registers users at boot. Invalid keys are skipped rather than
// failing startup.
func (s *Server) SeedUsers(ctx context.Context, users ...string) error {
	valid := make([]string, 0, len(users))
	for _, u := range users {
		n := userkey.Normalize(u)
		if userkey.Valid(n) {
			valid = append(valid, n)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	return s.users.Register(ctx, valid...)
}

// POST /v1/users  {user}
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req struct {
		User string `json:"user"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "user required"})
	}
	user := userkey.Normalize(req.User)
	if !userkey.Valid(user) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid user key"})
	}
	if err := s.users.Register(c.Context(), user); err != nil {
		s.log.Error("register user failed", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "store error"})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"user": user})
}

// POST /v1/login  {user} -> {token,user}
//
// Demo-grade login: possession of a registered user key is the whole
// credential. The token it mints gates the WebSocket upgrade.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		User string `json:"user"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "user required"})
	}
	user := userkey.Normalize(req.User)
	if !userkey.Valid(user) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid user key"})
	}
	known, err := s.users.Known(c.Context(), user)
	if err != nil {
		s.log.Error("login lookup failed", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "store error"})
	}
	if !known {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unknown user"})
	}

	claims := jwt.MapClaims{
		"sub": user,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "token error"})
	}
	return c.JSON(fiber.Map{"token": signed, "user": user})
}

// verifyToken parses an HS256 token and returns its subject.
func (s *Server) verifyToken(tokenStr string) (string, bool) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}
