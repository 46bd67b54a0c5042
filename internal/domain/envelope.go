package domain

import (
	"encoding/json"
	"time"
)

// EnvelopeType discriminates the messages pushed to subscribers.
type EnvelopeType string

const (
	EnvelopeInitialState EnvelopeType = "initial_state"
	EnvelopeSensorData   EnvelopeType = "sensor_data"
	EnvelopeStatusUpdate EnvelopeType = "status_update"
)

// Envelope is the tagged wrapper for every message on the subscribe channel.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InitialStatePayload is sent exactly once, right after a subscriber is
// admitted and before it can observe any broadcast.
type InitialStatePayload struct {
	DBConnected bool     `json:"db_connected"`
	LastReading *Reading `json:"last_reading"`
}

// StatusUpdatePayload reports a change of the store connectivity flag.
type StatusUpdatePayload struct {
	DBConnected bool      `json:"db_connected"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEnvelope marshals payload and wraps it with the type discriminator.
func NewEnvelope(t EnvelopeType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}
