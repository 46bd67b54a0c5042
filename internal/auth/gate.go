// Package auth validates the shared-secret credentials presented on the
// ingest and subscribe channels. The two channels are configured
// independently; a key valid for one carries no meaning for the other.
package auth

import (
	"crypto/subtle"
	"log/slog"

	"github.com/jpaullopes/sensorflow-server/internal/domain"
)

// Channel selects which expected credential a presented key is checked against.
type Channel string

const (
	ChannelIngest    Channel = "ingest"
	ChannelSubscribe Channel = "subscribe"
)

// Gate is a stateless credential validator.
type Gate struct {
	ingestKey    string
	subscribeKey string
}

func NewGate(ingestKey, subscribeKey string) *Gate {
	return &Gate{ingestKey: ingestKey, subscribeKey: subscribeKey}
}

// Verify checks the presented credential for the given channel.
// Returns domain.ErrCredentialNotConfigured when the server has no expected
// value for that channel, domain.ErrInvalidCredential when the presented
// value is empty or does not match byte-exactly, and nil on success.
//
// The presented value is never logged: these are shared secrets.
func (g *Gate) Verify(channel Channel, presented string) error {
	expected := g.expectedFor(channel)
	if expected == "" {
		slog.Error("Expected credential not configured", "channel", string(channel))
		return domain.ErrCredentialNotConfigured
	}
	if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		slog.Warn("Rejected request with invalid credential", "channel", string(channel))
		return domain.ErrInvalidCredential
	}
	return nil
}

func (g *Gate) expectedFor(channel Channel) string {
	switch channel {
	case ChannelIngest:
		return g.ingestKey
	case ChannelSubscribe:
		return g.subscribeKey
	default:
		return ""
	}
}
