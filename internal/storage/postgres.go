// Package storage implements the best-effort persistence sink on Postgres
// and owns the process-wide connectivity flag. The sink never blocks the
// broadcast path: a failed operation flips the flag and the caller carries
// on unpersisted.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpaullopes/sensorflow-server/internal/domain"
)

const connectTimeout = 5 * time.Second

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool, pings the server, and ensures the schema exists.
// Called once at startup; the caller flips the connectivity flag on success.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	store := &Store{pool: pool}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	slog.Info("Database connection established, schema ready")
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS data (
  id BIGSERIAL PRIMARY KEY,
  temperature DOUBLE PRECISION NOT NULL,
  humidity DOUBLE PRECISION NOT NULL,
  pressure DOUBLE PRECISION NOT NULL,
  date_recorded DATE NOT NULL,
  time_recorded TIME NOT NULL,
  sensor_id TEXT NOT NULL,
  client_ip TEXT
);

CREATE INDEX IF NOT EXISTS idx_data_date_recorded ON data(date_recorded);
CREATE INDEX IF NOT EXISTS idx_data_time_recorded ON data(time_recorded);
CREATE INDEX IF NOT EXISTS idx_data_sensor_id ON data(sensor_id);
`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// InsertReading persists one reading and returns its assigned id.
func (s *Store) InsertReading(ctx context.Context, r domain.Reading) (int64, error) {
	const query = `
INSERT INTO data (temperature, humidity, pressure, date_recorded, time_recorded, sensor_id, client_ip)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`

	var id int64
	err := s.pool.QueryRow(
		ctx,
		query,
		r.Temperature,
		r.Humidity,
		r.Pressure,
		r.DateRecorded,
		r.TimeRecorded,
		r.SensorID,
		r.ClientIP,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	return id, nil
}

// LatestReading returns the most recently persisted reading, or nil if the
// table is empty.
func (s *Store) LatestReading(ctx context.Context) (*domain.Reading, error) {
	const query = `
SELECT id, temperature, humidity, pressure,
       to_char(date_recorded, 'YYYY-MM-DD'),
       to_char(time_recorded, 'HH24:MI:SS'),
       sensor_id, COALESCE(client_ip, '')
FROM data
ORDER BY id DESC
LIMIT 1
`

	var r domain.Reading
	var id int64
	err := s.pool.QueryRow(ctx, query).Scan(
		&id,
		&r.Temperature,
		&r.Humidity,
		&r.Pressure,
		&r.DateRecorded,
		&r.TimeRecorded,
		&r.SensorID,
		&r.ClientIP,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest reading: %w", err)
	}
	r.ID = &id
	return &r, nil
}

func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(pingCtx)
}

func (s *Store) Close() {
	s.pool.Close()
}
