// Package hub implements the subscriber registry and broadcast fan-out using
// the actor pattern.
//
// A single goroutine owns the three registry collections (subscribers by
// handle id, handle id -> credential, credential -> live count) and processes
// admit/evict/broadcast commands from a channel, so the per-credential quota
// check and registration are linearized without mutexes. Per-connection write
// goroutines keep one slow or dead client from stalling the fan-out.
package hub
