// Package server wires the HTTP surface: REST routes, the streaming turn
// endpoint, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/sidekick/chat"
	"github.com/hrygo/sidekick/chat/gateway"
	"github.com/hrygo/sidekick/chat/metrics"
	"github.com/hrygo/sidekick/internal/profile"
	apiv1 "github.com/hrygo/sidekick/server/router/api/v1"
	"github.com/hrygo/sidekick/store"
)

type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
	exporter   *metrics.Exporter
}

func NewServer(_ context.Context, instanceProfile *profile.Profile, storeInstance *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.LogAttrs(context.Background(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			)
			return nil
		},
	}))

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	gatewayClient := gateway.NewClient(instanceProfile)
	titleGenerator := chat.NewTitleGenerator(instanceProfile, storeInstance, exporter)
	controller := chat.NewController(chat.ControllerConfig{
		Store:    storeInstance,
		Streamer: gatewayClient,
		Titler:   titleGenerator,
		Metrics:  exporter,
	})

	apiV1Service := apiv1.NewAPIV1Service(instanceProfile, storeInstance, controller, gatewayClient, titleGenerator)
	apiV1Service.RegisterRoutes(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	return &Server{
		echoServer: e,
		profile:    instanceProfile,
		store:      storeInstance,
		exporter:   exporter,
	}, nil
}

// Start launches the listener in the background; startup failures other than
// a clean close are fatal for the process.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "err", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "err", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "err", err)
	}

	slog.Info("sidekick stopped properly")
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}
