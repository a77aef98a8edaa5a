package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bytestrike/faucet_bot/internal/middleware"
	"github.com/bytestrike/faucet_bot/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// Transfers wait for confirmation inside the request, so the write timeout
// allows for the confirmation window.
func New(deps routes.Deps) (*Server, error) {
	cfg := deps.Cfg
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          cfg.ConfirmTimeout + 30*time.Second,
		ErrorHandler:          middleware.ErrorHandler,
		ProxyHeader:           cfg.TrustedProxyHeader,
		DisableStartupMessage: true,
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, addr: cfg.Address()}, nil
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
