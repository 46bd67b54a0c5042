package hub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpaullopes/sensorflow-server/internal/domain"
)

// fakeConn records text frames and can be told to fail writes.
type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	failWrites atomic.Bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if f.failWrites.Load() {
		return errors.New("write failed")
	}
	if messageType == websocket.TextMessage {
		f.mu.Lock()
		f.frames = append(f.frames, append([]byte(nil), data...))
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestHub_AdmitAndBroadcast(t *testing.T) {
	h := New(0, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	a, b := &fakeConn{}, &fakeConn{}
	_, err := h.Admit(a, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)
	_, err = h.Admit(b, "k2", "10.0.0.2:1", nil)
	require.NoError(t, err)

	h.Broadcast([]byte(`{"type":"sensor_data"}`))

	waitFor(t, func() bool { return len(a.messages()) == 1 && len(b.messages()) == 1 })
	assert.Equal(t, `{"type":"sensor_data"}`, string(a.messages()[0]))
	assert.Equal(t, `{"type":"sensor_data"}`, string(b.messages()[0]))
}

func TestHub_QuotaAdmitEvictCycle(t *testing.T) {
	h := New(1, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	h1, err := h.Admit(&fakeConn{}, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)

	// Second admission for the same credential must be rejected without
	// touching registry state.
	_, err = h.Admit(&fakeConn{}, "k1", "10.0.0.2:1", nil)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, 1, h.CountForCredential("k1"))
	assert.Equal(t, 1, h.ClientCount())

	h.Evict(h1)
	waitFor(t, func() bool { return h.ClientCount() == 0 })
	assert.Equal(t, 0, h.CountForCredential("k1"))

	_, err = h.Admit(&fakeConn{}, "k1", "10.0.0.2:1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, h.CountForCredential("k1"))
}

func TestHub_QuotaIndependentPerCredential(t *testing.T) {
	h := New(1, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	_, err := h.Admit(&fakeConn{}, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)
	_, err = h.Admit(&fakeConn{}, "k2", "10.0.0.2:1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, h.ClientCount())
}

func TestHub_ConcurrentAdmitsRespectQuota(t *testing.T) {
	const quota = 5
	h := New(quota, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	var wg sync.WaitGroup
	var admitted, rejected atomic.Int64
	for i := 0; i < 2*quota; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Admit(&fakeConn{}, "k1", fmt.Sprintf("10.0.0.%d:1", i), nil)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domain.ErrQuotaExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected admit error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(quota), admitted.Load())
	assert.Equal(t, int64(quota), rejected.Load())
	assert.Equal(t, quota, h.CountForCredential("k1"))
	assert.Equal(t, quota, h.ClientCount())
}

func TestHub_EvictIsIdempotent(t *testing.T) {
	h := New(0, clockwork.NewRealClock())

	id, err := h.Admit(&fakeConn{}, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)

	h.Evict(id)
	h.Evict(id)
	h.Evict(uuid.New()) // never admitted

	waitFor(t, func() bool { return h.ClientCount() == 0 })
	assert.Equal(t, 0, h.CountForCredential("k1"))

	// After the actor exits it is safe to inspect the collections directly:
	// no stale reverse-map entries and no zero-valued counters may linger.
	h.Stop()
	assert.Empty(t, h.subscribers)
	assert.Empty(t, h.credentials)
	assert.Empty(t, h.perKey)
}

func TestHub_FailedSendEvictsOnlyFailingHandle(t *testing.T) {
	h := New(0, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	_, err := h.Admit(a, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)
	_, err = h.Admit(b, "k1", "10.0.0.2:1", nil)
	require.NoError(t, err)
	_, err = h.Admit(c, "k1", "10.0.0.3:1", nil)
	require.NoError(t, err)

	b.failWrites.Store(true)

	h.Broadcast([]byte("m1"))

	// A and C receive m1 exactly once; B's write failure evicts B alone.
	waitFor(t, func() bool { return h.ClientCount() == 2 })
	waitFor(t, func() bool { return len(a.messages()) == 1 && len(c.messages()) == 1 })
	assert.Empty(t, b.messages())
	assert.Equal(t, 2, h.CountForCredential("k1"))

	h.Broadcast([]byte("m2"))
	waitFor(t, func() bool { return len(a.messages()) == 2 && len(c.messages()) == 2 })
	assert.Equal(t, "m1", string(a.messages()[0]))
	assert.Equal(t, "m2", string(a.messages()[1]))
	assert.Empty(t, b.messages())
}

func TestHub_PerHandleFIFO(t *testing.T) {
	h := New(0, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	conn := &fakeConn{}
	_, err := h.Admit(conn, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)

	const n = 10
	for i := 0; i < n; i++ {
		h.Broadcast([]byte(fmt.Sprintf("msg-%d", i)))
	}

	waitFor(t, func() bool { return len(conn.messages()) == n })
	for i, msg := range conn.messages() {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(msg))
	}
}

func TestHub_WelcomeDeliveredBeforeBroadcasts(t *testing.T) {
	h := New(0, clockwork.NewRealClock())
	t.Cleanup(h.Stop)

	// A broadcast before admission must not reach the new subscriber.
	h.Broadcast([]byte("before"))

	conn := &fakeConn{}
	_, err := h.Admit(conn, "k1", "10.0.0.1:1", []byte("welcome"))
	require.NoError(t, err)

	h.Broadcast([]byte("after"))

	waitFor(t, func() bool { return len(conn.messages()) == 2 })
	assert.Equal(t, "welcome", string(conn.messages()[0]))
	assert.Equal(t, "after", string(conn.messages()[1]))
}

func TestHub_StopClosesAllConnections(t *testing.T) {
	h := New(0, clockwork.NewRealClock())

	a, b := &fakeConn{}, &fakeConn{}
	_, err := h.Admit(a, "k1", "10.0.0.1:1", nil)
	require.NoError(t, err)
	_, err = h.Admit(b, "k2", "10.0.0.2:1", nil)
	require.NoError(t, err)

	h.Stop()

	a.mu.Lock()
	assert.True(t, a.closed)
	a.mu.Unlock()
	b.mu.Lock()
	assert.True(t, b.closed)
	b.mu.Unlock()
	assert.Empty(t, h.subscribers)
	assert.Empty(t, h.perKey)
}
