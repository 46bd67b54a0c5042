package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/jpaullopes/sensorflow-server/internal/auth"
	"github.com/jpaullopes/sensorflow-server/internal/domain"
	"github.com/jpaullopes/sensorflow-server/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Sensors and dashboards connect from arbitrary origins
	},
}

func (s *Server) handleSensorUpdates(c echo.Context) error {
	ip := c.RealIP()
	if !s.limiter.Allow(ip) {
		metrics.ConnectionsRejectedTotal.Inc()
		return c.JSON(http.StatusTooManyRequests, map[string]string{"detail": "Too many connection attempts."})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	if err := s.gate.Verify(auth.ChannelSubscribe, c.QueryParam("api-key")); err != nil {
		closePolicyViolation(conn, "Invalid or missing API Key.")
		return nil
	}

	// Built before admission so it is the first message the subscriber can
	// ever observe; the hub queues it during registration.
	welcome := s.ingest.InitialState(c.Request().Context())

	id, err := s.hub.Admit(conn, c.QueryParam("api-key"), conn.RemoteAddr().String(), welcome)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			closePolicyViolation(conn, fmt.Sprintf("Max connections (%d) for this API Key reached.", s.config.MaxConnsPerKey))
		} else {
			_ = conn.Close()
		}
		return nil
	}

	// Read pump: inbound frames are keep-alive only. Blocks until the client
	// disconnects or the connection errors, then evicts exactly this handle.
	defer s.hub.Evict(id)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	return nil
}

// closePolicyViolation rejects a connection that was already upgraded with a
// 1008 close frame carrying the reason, then closes it.
func closePolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
