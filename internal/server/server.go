// Package server implements the HTTP surface using Echo: the authenticated
// ingest endpoint, the WebSocket subscribe endpoint, and the observability
// routes (health, metrics).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jpaullopes/sensorflow-server/internal/auth"
	"github.com/jpaullopes/sensorflow-server/internal/config"
	"github.com/jpaullopes/sensorflow-server/internal/domain"
	"github.com/jpaullopes/sensorflow-server/internal/hub"
	"github.com/jpaullopes/sensorflow-server/internal/ingest"
	"github.com/jpaullopes/sensorflow-server/internal/storage"
)

// ingestService is what the handlers need from the ingest pipeline.
type ingestService interface {
	Submit(ctx context.Context, payload ingest.ReadingPayload, clientIP string) domain.Reading
	InitialState(ctx context.Context) []byte
}

// subscriberHub is what the WebSocket handler needs from the registry.
type subscriberHub interface {
	Admit(connection hub.Conn, credential, remoteAddr string, welcome []byte) (uuid.UUID, error)
	Evict(id uuid.UUID)
}

// credentialGate validates a presented credential for a channel.
type credentialGate interface {
	Verify(channel auth.Channel, presented string) error
}

// storePinger is the optional diagnostic ping for the readiness endpoint.
type storePinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	gate      credentialGate
	ingest    ingestService
	hub       subscriberHub
	connState *storage.ConnState
	store     storePinger
	limiter   *connRateLimiter
	startTime time.Time
}

type payloadValidator struct {
	validate *validator.Validate
}

func (v *payloadValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// NewServer wires routes and middleware. store may be nil when no database
// is configured.
func NewServer(cfg *config.Config, gate credentialGate, ingestSvc ingestService, subHub subscriberHub, connState *storage.ConnState, store storePinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Validator = &payloadValidator{validate: validator.New()}

	srv := &Server{
		echo:      e,
		config:    cfg,
		gate:      gate,
		ingest:    ingestSvc,
		hub:       subHub,
		connState: connState,
		store:     store,
		limiter:   newConnRateLimiter(cfg.WSConnRate, cfg.WSConnBurst),
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
