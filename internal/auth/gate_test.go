package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jpaullopes/sensorflow-server/internal/domain"
)

func TestGate_Verify(t *testing.T) {
	tests := []struct {
		name      string
		ingest    string
		subscribe string
		channel   Channel
		presented string
		wantErr   error
	}{
		{"ingest match", "secret", "ws-secret", ChannelIngest, "secret", nil},
		{"subscribe match", "secret", "ws-secret", ChannelSubscribe, "ws-secret", nil},
		{"ingest mismatch", "secret", "ws-secret", ChannelIngest, "wrong", domain.ErrInvalidCredential},
		{"empty presented", "secret", "ws-secret", ChannelIngest, "", domain.ErrInvalidCredential},
		{"ingest key on subscribe channel", "secret", "ws-secret", ChannelSubscribe, "secret", domain.ErrInvalidCredential},
		{"subscribe key on ingest channel", "secret", "ws-secret", ChannelIngest, "ws-secret", domain.ErrInvalidCredential},
		{"ingest not configured", "", "ws-secret", ChannelIngest, "anything", domain.ErrCredentialNotConfigured},
		{"subscribe not configured", "secret", "", ChannelSubscribe, "anything", domain.ErrCredentialNotConfigured},
		{"unknown channel", "secret", "ws-secret", Channel("other"), "secret", domain.ErrCredentialNotConfigured},
		{"case sensitive", "Secret", "ws-secret", ChannelIngest, "secret", domain.ErrInvalidCredential},
		{"no trimming", "secret", "ws-secret", ChannelIngest, "secret ", domain.ErrInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.ingest, tt.subscribe)
			err := gate.Verify(tt.channel, tt.presented)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
