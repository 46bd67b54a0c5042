// Package ingest validates inbound sensor readings, stamps them in the
// reference timezone, persists them best-effort, and hands the resulting
// envelope to the hub for fan-out. Ingestion never fails because storage is
// down: a persistence failure flips the connectivity flag and the reading is
// broadcast unpersisted.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jpaullopes/sensorflow-server/internal/domain"
	"github.com/jpaullopes/sensorflow-server/internal/logging"
	"github.com/jpaullopes/sensorflow-server/internal/metrics"
	"github.com/jpaullopes/sensorflow-server/internal/storage"
)

// ReadingPayload is the ingest request body. Required fields are pointers so
// a missing field is distinguishable from a zero value.
type ReadingPayload struct {
	Temperature *float64 `json:"temperature" validate:"required"`
	Humidity    *float64 `json:"humidity" validate:"required"`
	Pressure    *float64 `json:"pressure" validate:"required"`
	SensorID    string   `json:"sensor_id" validate:"required"`
}

// Store is the persistence sink the service writes to.
type Store interface {
	InsertReading(ctx context.Context, r domain.Reading) (int64, error)
	LatestReading(ctx context.Context) (*domain.Reading, error)
}

// Broadcaster fans a marshaled envelope out to all subscribers.
type Broadcaster interface {
	Broadcast(data []byte)
}

type Service struct {
	store    Store
	state    *storage.ConnState
	hub      Broadcaster
	clock    clockwork.Clock
	location *time.Location
}

// NewService wires the ingest pipeline. store may be nil when no store is
// configured; the connectivity flag is then permanently down.
func NewService(store Store, state *storage.ConnState, hub Broadcaster, clock clockwork.Clock, location *time.Location) *Service {
	return &Service{
		store:    store,
		state:    state,
		hub:      hub,
		clock:    clock,
		location: location,
	}
}

// Submit turns a validated payload into a stamped reading, persists it if
// the store is reachable, and broadcasts it. The returned reading carries a
// nil ID when persistence was skipped or failed.
func (s *Service) Submit(ctx context.Context, payload ReadingPayload, clientIP string) domain.Reading {
	now := s.clock.Now().In(s.location)
	reading := domain.Reading{
		Temperature:  *payload.Temperature,
		Humidity:     *payload.Humidity,
		Pressure:     *payload.Pressure,
		DateRecorded: now.Format(domain.DateLayout),
		TimeRecorded: now.Format(domain.TimeLayout),
		SensorID:     payload.SensorID,
		ClientIP:     clientIP,
	}

	logger := logging.WithSensor(reading.SensorID)
	logger.Info("Reading received",
		"client_ip", clientIP,
		"temperature", reading.Temperature,
		"humidity", reading.Humidity,
		"pressure", reading.Pressure,
	)

	if s.state.Connected() && s.store != nil {
		id, err := s.store.InsertReading(ctx, reading)
		if err != nil {
			s.reportPersistenceFailure(err)
		} else {
			reading.ID = &id
			logger.Info("Reading saved", "id", id)
		}
	} else {
		logger.Warn("Database unavailable, reading will not be saved")
	}

	if reading.ID != nil {
		metrics.IngestReadingsTotal.WithLabelValues("true").Inc()
	} else {
		metrics.IngestReadingsTotal.WithLabelValues("false").Inc()
	}

	data, err := domain.NewEnvelope(domain.EnvelopeSensorData, reading)
	if err != nil {
		slog.Error("Failed to marshal sensor data envelope", "error", err)
		return reading
	}
	s.hub.Broadcast(data)

	return reading
}

// InitialState builds the one-shot envelope a freshly admitted subscriber
// receives before any broadcast: current connectivity plus the most recently
// persisted reading. A failed lookup flips the flag and yields nulls.
func (s *Service) InitialState(ctx context.Context) []byte {
	var last *domain.Reading
	if s.state.Connected() && s.store != nil {
		var err error
		last, err = s.store.LatestReading(ctx)
		if err != nil {
			s.reportPersistenceFailure(err)
			last = nil
		}
	}

	data, err := domain.NewEnvelope(domain.EnvelopeInitialState, domain.InitialStatePayload{
		DBConnected: s.state.Connected(),
		LastReading: last,
	})
	if err != nil {
		slog.Error("Failed to marshal initial state envelope", "error", err)
		return nil
	}
	return data
}

// reportPersistenceFailure flips the connectivity flag and, on the actual
// transition, pushes a status update to all subscribers. Never propagated to
// the submitting client.
func (s *Service) reportPersistenceFailure(err error) {
	metrics.StorageErrorsTotal.Inc()
	slog.Error("Persistence failure, database marked as offline", "error", err)

	if !s.state.MarkDown() {
		return
	}

	data, marshalErr := domain.NewEnvelope(domain.EnvelopeStatusUpdate, domain.StatusUpdatePayload{
		DBConnected: false,
		Timestamp:   s.clock.Now().In(s.location),
	})
	if marshalErr != nil {
		slog.Error("Failed to marshal status update envelope", "error", marshalErr)
		return
	}
	s.hub.Broadcast(data)
}
