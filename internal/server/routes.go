package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Ingest (X-API-Key header)
	s.echo.POST("/api/temperature_reading", s.handleTemperatureReading)

	// Subscribe (api-key query parameter, upgraded to WebSocket)
	s.echo.GET("/ws/sensor_updates", s.handleSensorUpdates)
}
