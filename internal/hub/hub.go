package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jpaullopes/sensorflow-server/internal/domain"
	"github.com/jpaullopes/sensorflow-server/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// Eviction reasons, used for logging and metrics labels.
const (
	evictReasonDisconnect  = "disconnect"
	evictReasonSendFailure = "send_failure"
	evictReasonShutdown    = "shutdown"
)

// subscriber is one admitted handle: the connection writer plus the
// bookkeeping fields fixed at admission time.
type subscriber struct {
	id         uuid.UUID
	credential string
	remoteAddr string
	writer     *clientWriter
}

// --- Command types ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type admitResult struct {
	id  uuid.UUID
	err error
}

type admitCmd struct {
	baseHubCmd
	connection Conn
	credential string
	remoteAddr string
	welcome    []byte
	replyCh    chan admitResult
}

type evictCmd struct {
	baseHubCmd
	id     uuid.UUID
	reason string
}

type broadcastCmd struct {
	baseHubCmd
	data []byte
}

type countCmd struct {
	baseHubCmd
	credential string // empty means total
	replyCh    chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the subscriber registry. A single goroutine owns all three
// collections; every mutation goes through the command channel, so a quota
// check can never observe a half-updated state.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	maxPerKey   int
	subscribers map[uuid.UUID]*subscriber
	credentials map[uuid.UUID]string // handle id -> credential (reverse index)
	perKey      map[string]int       // credential -> live count, no zero entries
	done        chan struct{}
}

// New creates a hub. maxPerKey limits simultaneous subscribers per
// credential; 0 means unbounded.
func New(maxPerKey int, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, 256),
		clock:       clock,
		maxPerKey:   maxPerKey,
		subscribers: make(map[uuid.UUID]*subscriber),
		credentials: make(map[uuid.UUID]string),
		perKey:      make(map[string]int),
		done:        make(chan struct{}),
	}
	go h.run()
	return h
}

// Admit registers an already-authenticated, already-upgraded connection.
// welcome, when non-nil, is queued as the handle's first message before any
// later broadcast can reach it. On domain.ErrQuotaExceeded no registry state
// was touched and the caller owns closing the connection with a
// policy-violation close code.
func (h *Hub) Admit(connection Conn, credential, remoteAddr string, welcome []byte) (uuid.UUID, error) {
	replyCh := make(chan admitResult, 1)
	h.cmdCh <- admitCmd{connection: connection, credential: credential, remoteAddr: remoteAddr, welcome: welcome, replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.id, res.err
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("admit command timed out after %v", commandTimeout)
	}
}

// Evict removes a handle. Idempotent: evicting an unknown handle is a no-op,
// which matters because the failed-send cleanup and the client-disconnect
// path may race to evict the same handle.
func (h *Hub) Evict(id uuid.UUID) {
	h.cmdCh <- evictCmd{id: id, reason: evictReasonDisconnect}
}

// Broadcast delivers data to every admitted handle. A send failure on one
// handle never aborts delivery to the rest; failed handles are evicted after
// the fan-out pass.
func (h *Hub) Broadcast(data []byte) {
	h.cmdCh <- broadcastCmd{data: data}
}

// ClientCount returns the total number of admitted subscribers.
// Returns -1 if the command times out.
func (h *Hub) ClientCount() int {
	return h.count("")
}

// CountForCredential returns the live count for one credential.
// Returns -1 if the command times out.
func (h *Hub) CountForCredential(credential string) int {
	return h.count(credential)
}

func (h *Hub) count(credential string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- countCmd{credential: credential, replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		slog.Warn("Hub count command timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, closing all subscriber connections with a normal
// close frame. Blocks until the hub goroutine exits or the timeout passes.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			metrics.HubCommandChannelDepth.Set(float64(len(h.cmdCh)))
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case admitCmd:
				h.handleAdmit(c)
			case evictCmd:
				h.handleEvict(c.id, c.reason)
			case broadcastCmd:
				h.handleBroadcast(c.data)
			case countCmd:
				if c.credential == "" {
					c.replyCh <- len(h.subscribers)
				} else {
					c.replyCh <- h.perKey[c.credential]
				}
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleAdmit(c admitCmd) {
	if h.maxPerKey > 0 && h.perKey[c.credential] >= h.maxPerKey {
		slog.Warn("Subscriber rejected: max connections for credential reached",
			"max_connections", h.maxPerKey,
			"remote_addr", c.remoteAddr,
		)
		metrics.HubAdmissionsTotal.WithLabelValues("quota_exceeded").Inc()
		c.replyCh <- admitResult{err: domain.ErrQuotaExceeded}
		return
	}

	id := uuid.New()
	sub := &subscriber{
		id:         id,
		credential: c.credential,
		remoteAddr: c.remoteAddr,
		// A failed write anywhere on this connection requests eviction of
		// this one handle; the idempotent evict absorbs the race with the
		// read-pump disconnect path.
		writer: newClientWriter(c.connection, h.clock, func() {
			h.requestEvict(id, evictReasonSendFailure)
		}),
	}

	h.subscribers[id] = sub
	h.credentials[id] = c.credential
	h.perKey[c.credential]++

	if c.welcome != nil {
		if !sub.writer.enqueue(c.welcome) {
			slog.Warn("Failed to queue initial state message", "remote_addr", c.remoteAddr)
		}
	}

	metrics.HubAdmissionsTotal.WithLabelValues("admitted").Inc()
	metrics.HubConnectedClients.Set(float64(len(h.subscribers)))

	slog.Info("Subscriber admitted",
		"remote_addr", c.remoteAddr,
		"credential_connections", h.perKey[c.credential],
		"total_connections", len(h.subscribers),
	)
	c.replyCh <- admitResult{id: id}
}

func (h *Hub) handleEvict(id uuid.UUID, reason string) {
	sub, exists := h.subscribers[id]
	if !exists {
		slog.Debug("Evict for unknown handle, already removed", "handle_id", id.String())
		return
	}

	sub.writer.stop()

	delete(h.subscribers, id)
	credential := h.credentials[id]
	delete(h.credentials, id)
	if h.perKey[credential] <= 1 {
		delete(h.perKey, credential)
	} else {
		h.perKey[credential]--
	}

	metrics.HubEvictionsTotal.WithLabelValues(reason).Inc()
	metrics.HubConnectedClients.Set(float64(len(h.subscribers)))

	slog.Info("Subscriber evicted",
		"reason", reason,
		"remote_addr", sub.remoteAddr,
		"credential_connections", h.perKey[credential],
		"total_connections", len(h.subscribers),
	)
}

func (h *Hub) handleBroadcast(data []byte) {
	start := h.clock.Now()

	var failed []uuid.UUID
	for id, sub := range h.subscribers {
		select {
		case <-sub.writer.failed():
			failed = append(failed, id)
			continue
		default:
		}
		if !sub.writer.enqueue(data) {
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		slog.Warn("Evicting subscriber after send failure", "handle_id", id.String())
		h.handleEvict(id, evictReasonSendFailure)
	}

	metrics.HubBroadcastDuration.Observe(h.clock.Since(start).Seconds())
}

// requestEvict is called from writer goroutines; it must not block the
// caller, so a saturated command channel falls back to the next broadcast
// pass picking the failed writer up.
func (h *Hub) requestEvict(id uuid.UUID, reason string) {
	select {
	case h.cmdCh <- evictCmd{id: id, reason: reason}:
	default:
	}
}

func (h *Hub) handleStop() {
	total := len(h.subscribers)
	slog.Info("Hub shutting down", "total_connections", total)

	for id, sub := range h.subscribers {
		sub.writer.stopGraceful("Server shutting down")
		delete(h.subscribers, id)
		delete(h.credentials, id)
	}
	for credential := range h.perKey {
		delete(h.perKey, credential)
	}
	if total > 0 {
		metrics.HubEvictionsTotal.WithLabelValues(evictReasonShutdown).Add(float64(total))
	}
	metrics.HubConnectedClients.Set(0)

	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}
