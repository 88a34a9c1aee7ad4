// Package server exposes the service over HTTP: the WebSocket session
// endpoint, the demo login and user registry routes, and a health probe.
package server

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/config"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/session"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

type Server struct {
	cfg     config.Config
	log     *zap.Logger
	app     *fiber.App
	store   *store.Store
	manager *session.Manager
	users   *UserRegistry
}

func New(cfg config.Config, st *store.Store, manager *session.Manager, log *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log.Named("http"),
		store:   st,
		manager: manager,
		users:   NewUserRegistry(st),
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			AppName:               "presenced",
		}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/v1/users", s.handleRegister)
	s.app.Post("/v1/login", s.handleLogin)
	s.registerWebsocket()
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.store.Ping(c.Context()); err != nil {
		s.log.Warn("health check store ping failed", zap.Error(err))
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
	}
	return c.JSON(fiber.Map{"status": "ok", "server_id": s.cfg.ServerID})
}
