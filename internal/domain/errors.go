package domain

import "errors"

var (
	// ErrCredentialNotConfigured means the server-side expected credential
	// for a channel was never set. A server misconfiguration, not a client
	// auth failure.
	ErrCredentialNotConfigured = errors.New("expected credential not configured")

	// ErrInvalidCredential means the presented credential is empty or does
	// not match the configured value.
	ErrInvalidCredential = errors.New("invalid or missing credential")

	// ErrQuotaExceeded means the per-credential connection quota is already
	// fully used. Admission is rejected without touching registry state.
	ErrQuotaExceeded = errors.New("max connections for this credential reached")
)
