// Package domain holds the shared types of the sensor pipeline: readings,
// outbound message envelopes, and the error taxonomy used across transport,
// registry, and persistence layers.
package domain
