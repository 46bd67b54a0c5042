// Package config loads the service configuration from environment variables.
//
// Unlike most settings, the credentials and DATABASE_URL are deliberately not
// required: the service starts degraded (rejecting the affected channel, or
// running without persistence) instead of refusing to boot.
package config
