package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/jpaullopes/sensorflow-server/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// Conn is the subset of *websocket.Conn the writer needs. Narrowed to an
// interface so registry tests can inject failing connections.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// clientWriter serializes all writes to one connection. Messages are
// enqueued on a buffered channel; a full buffer or a failed write marks the
// writer failed, which the hub treats as a send failure on that handle.
type clientWriter struct {
	connection Conn
	clock      clockwork.Clock
	sendCh     chan []byte
	doneCh     chan struct{}
	failedCh   chan struct{}
	onFailure  func()
	stopOnce   sync.Once
	failOnce   sync.Once
	wg         sync.WaitGroup
}

func newClientWriter(connection Conn, clock clockwork.Clock, onFailure func()) *clientWriter {
	cw := &clientWriter{
		connection: connection,
		clock:      clock,
		sendCh:     make(chan []byte, messageBufferSize),
		doneCh:     make(chan struct{}),
		failedCh:   make(chan struct{}),
		onFailure:  onFailure,
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendCh:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.markFailed()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				cw.markFailed()
				return
			}
		case <-cw.doneCh:
			return
		}
	}
}

// enqueue hands a message to the writer without blocking.
// Returns false when the buffer is full or the writer already failed.
func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case <-cw.failedCh:
		return false
	default:
	}

	select {
	case cw.sendCh <- msg:
		return true
	default:
		return false
	}
}

// failed is closed once a write on this connection has failed.
func (cw *clientWriter) failed() <-chan struct{} {
	return cw.failedCh
}

func (cw *clientWriter) markFailed() {
	cw.failOnce.Do(func() {
		close(cw.failedCh)
		if cw.onFailure != nil {
			cw.onFailure()
		}
	})
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneCh)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		// Stop the run goroutine first so the close frame write below
		// cannot interleave with a message write.
		close(cw.doneCh)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
