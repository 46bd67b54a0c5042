package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jpaullopes/sensorflow-server/internal/auth"
	"github.com/jpaullopes/sensorflow-server/internal/domain"
	"github.com/jpaullopes/sensorflow-server/internal/ingest"
)

func (s *Server) handleTemperatureReading(c echo.Context) error {
	if err := s.gate.Verify(auth.ChannelIngest, c.Request().Header.Get("X-API-Key")); err != nil {
		if errors.Is(err, domain.ErrCredentialNotConfigured) {
			return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "Server configuration error."})
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Invalid or missing API Key."})
	}

	var payload ingest.ReadingPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Malformed request body."})
	}
	if err := c.Validate(&payload); err != nil {
		return err
	}

	reading := s.ingest.Submit(c.Request().Context(), payload, c.RealIP())
	return c.JSON(http.StatusCreated, reading)
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	// Persistence is best-effort, so a down store degrades the report but
	// never fails readiness. The connectivity flag is not re-probed here;
	// the ping is diagnostic only.
	report := map[string]any{
		"status":       "ready",
		"db_connected": s.connState.Connected(),
	}

	if s.store != nil && s.connState.Connected() {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			report["db_ping_error"] = err.Error()
		}
	}

	return c.JSON(http.StatusOK, report)
}
