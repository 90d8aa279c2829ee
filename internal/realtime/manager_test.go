package realtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pert-dashboard/internal/domain"
)

// fakeConn is an in-memory Conn driven by the test.
type fakeConn struct {
	msgs      chan []byte
	drop      chan struct{}
	closed    chan struct{}
	dropOnce  sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	controls []int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan []byte, 64),
		drop:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case p := <-c.msgs:
		return websocket.TextMessage, p, nil
	case <-c.drop:
		return 0, nil, errors.New("connection reset by peer")
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// remoteDrop simulates the server going away.
func (c *fakeConn) remoteDrop() {
	c.dropOnce.Do(func() { close(c.drop) })
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) controlFrames() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

// fakeDialer hands out fakeConns, or fails while fail is set.
type fakeDialer struct {
	calls atomic.Int32
	fail  atomic.Bool
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial")
		return nil
	}
}

// fakeClock records AfterFunc callbacks; the test fires them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) Now() time.Time { return fixedNow }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func (c *fakeClock) firePending() int {
	timers := c.pending()
	c.mu.Lock()
	for _, t := range timers {
		t.fired = true
	}
	c.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
	return len(timers)
}

// transitionLog records state changes reported by the manager.
type transitionLog struct {
	mu    sync.Mutex
	edges [][2]domain.ChannelState
}

func (l *transitionLog) record(from, to domain.ChannelState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edges = append(l.edges, [2]domain.ChannelState{from, to})
}

func (l *transitionLog) snapshot() [][2]domain.ChannelState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]domain.ChannelState(nil), l.edges...)
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	clock  *fakeClock
	log    *transitionLog
	events chan domain.UpdateEvent
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		dialer: newFakeDialer(),
		clock:  &fakeClock{},
		log:    &transitionLog{},
		events: make(chan domain.UpdateEvent, 128),
	}
	h.m = NewManager(Options{
		Config:        cfg,
		Dialer:        h.dialer,
		Clock:         h.clock,
		OnStateChange: h.log.record,
		OnEvent:       func(e domain.UpdateEvent) { h.events <- e },
	})
	t.Cleanup(func() {
		h.m.Disconnect()
		for _, e := range h.log.snapshot() {
			assert.True(t, domain.CanTransition(e[0], e[1]), "illegal transition %s -> %s", e[0], e[1])
		}
	})
	return h
}

func (h *harness) waitState(t *testing.T, want domain.ChannelState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State() == want },
		2*time.Second, 2*time.Millisecond, "state never became %s (is %s)", want, h.m.State())
}

func (h *harness) currentGen() uint64 {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.gen
}

func TestManager_ConnectLifecycle(t *testing.T) {
	h := newHarness(t, Config{ReconnectDelay: 3 * time.Second})
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	h.m.Disconnect()
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())
	assert.True(t, conn.isClosed())
	assert.Contains(t, conn.controlFrames(), websocket.CloseMessage)

	assert.Equal(t, [][2]domain.ChannelState{
		{domain.ChannelDisconnected, domain.ChannelConnecting},
		{domain.ChannelConnecting, domain.ChannelConnected},
		{domain.ChannelConnected, domain.ChannelDisconnected},
	}, h.log.snapshot())
}

func TestManager_ConnectIsNoOpWhileActive(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Connect()
	h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	h.m.Connect()
	h.m.Connect()
	assert.Equal(t, int32(1), h.dialer.calls.Load())
}

func TestManager_MessagesNormalizedInOrder(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	conn.msgs <- []byte(`{"type":"progress","message":"first"}`)
	conn.msgs <- []byte(`not json at all`)
	conn.msgs <- []byte(`{"project_duration":12}`)
	conn.msgs <- []byte(`[1,2]`)
	conn.msgs <- []byte(`{"type":"task_updated","message":"third"}`)

	require.Eventually(t, func() bool { return h.m.Feed().Len() == 3 }, 2*time.Second, 2*time.Millisecond)

	snap := h.m.Feed().Snapshot()
	assert.Equal(t, "third", snap[0].Message)
	assert.Equal(t, domain.EventCalculationComplete, snap[1].Kind)
	assert.Equal(t, `{"project_duration":12}`, string(snap[1].Data))
	assert.Equal(t, "first", snap[2].Message)

	// observers see arrival order
	var observed []string
	for i := 0; i < 3; i++ {
		observed = append(observed, (<-h.events).Kind.String())
	}
	assert.Equal(t, []string{"progress", "calculation_complete", "task_updated"}, observed)
	assert.Equal(t, domain.ChannelConnected, h.m.State(), "parse failures must not tear down the channel")
}

func TestManager_ReconnectAfterClosure(t *testing.T) {
	h := newHarness(t, Config{ReconnectDelay: 5 * time.Second})

	h.m.Connect()
	first := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	first.remoteDrop()
	h.waitState(t, domain.ChannelReconnecting)

	pending := h.clock.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 5*time.Second, pending[0].delay)
	assert.True(t, first.isClosed())
	assert.Equal(t, int32(1), h.dialer.calls.Load(), "no reconnect before the timer fires")

	require.Equal(t, 1, h.clock.firePending())
	second := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)
	assert.Equal(t, int32(2), h.dialer.calls.Load())
	assert.Empty(t, h.clock.pending())

	second.msgs <- []byte(`{"type":"info","message":"after reconnect"}`)
	require.Eventually(t, func() bool { return h.m.Feed().Len() == 1 }, 2*time.Second, 2*time.Millisecond)
}

func TestManager_SecondCloseDoesNotScheduleSecondTimer(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	conn.remoteDrop()
	h.waitState(t, domain.ChannelReconnecting)
	require.Len(t, h.clock.pending(), 1)

	gen := h.currentGen()
	h.m.handleClose(gen, &ConnectionError{Op: "read", Err: errors.New("second close")})
	h.m.handleClose(gen, &ConnectionError{Op: "read", Err: errors.New("third close")})

	assert.Len(t, h.clock.pending(), 1, "at most one reconnect timer may be pending")
	assert.Len(t, h.clock.all(), 1)

	h.clock.firePending()
	h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)
	assert.Equal(t, int32(2), h.dialer.calls.Load(), "connect invoked exactly once per closure")
}

func TestManager_DialFailureRetries(t *testing.T) {
	h := newHarness(t, Config{})
	h.dialer.fail.Store(true)

	h.m.Connect()
	h.waitState(t, domain.ChannelReconnecting)
	require.Len(t, h.clock.pending(), 1)

	for i := 0; i < 3; i++ {
		require.Equal(t, 1, h.clock.firePending())
		require.Eventually(t, func() bool {
			return h.m.State() == domain.ChannelReconnecting && len(h.clock.pending()) == 1
		}, 2*time.Second, 2*time.Millisecond)
	}
	assert.Equal(t, int32(4), h.dialer.calls.Load())

	h.dialer.fail.Store(false)
	h.clock.firePending()
	h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)
	assert.Empty(t, h.clock.pending())
}

func TestManager_DisconnectCancelsPendingTimer(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	conn.remoteDrop()
	h.waitState(t, domain.ChannelReconnecting)
	timers := h.clock.pending()
	require.Len(t, timers, 1)

	h.m.Disconnect()
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())
	assert.Empty(t, h.clock.pending(), "teardown must stop the reconnect timer")
	assert.True(t, timers[0].stopped)

	// a callback that raced with Stop must not revive the channel
	timers[0].f()
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())
	assert.Equal(t, int32(1), h.dialer.calls.Load())

	// late events from the torn-down connection are ignored
	h.m.handleClose(h.currentGen(), &ConnectionError{Op: "read", Err: errors.New("late")})
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())
	assert.Empty(t, h.clock.pending())
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.m.Disconnect()
	h.m.Disconnect()
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())
	assert.Empty(t, h.log.snapshot())
}

func TestManager_StaleConnectionIgnored(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)
	staleGen := h.currentGen()

	conn.remoteDrop()
	h.waitState(t, domain.ChannelReconnecting)
	h.clock.firePending()
	h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	h.m.handleMessage(staleGen, []byte(`{"type":"info","message":"stale"}`))
	h.m.handleClose(staleGen, &ConnectionError{Op: "read", Err: errors.New("stale")})

	assert.Equal(t, 0, h.m.Feed().Len())
	assert.Equal(t, domain.ChannelConnected, h.m.State())
}

func TestManager_SurfaceConnectionErrors(t *testing.T) {
	h := newHarness(t, Config{SurfaceConnectionErrors: true})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	conn.remoteDrop()
	h.waitState(t, domain.ChannelReconnecting)

	snap := h.m.Feed().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.EventError, snap[0].Kind)
	assert.Contains(t, snap[0].Details, "connection reset by peer")
}

func TestManager_ClearDoesNotAffectState(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	conn.msgs <- []byte(`{"type":"info","message":"x"}`)
	require.Eventually(t, func() bool { return h.m.Feed().Len() == 1 }, 2*time.Second, 2*time.Millisecond)

	h.m.Feed().Clear()
	assert.Equal(t, 0, h.m.Feed().Len())
	assert.Equal(t, domain.ChannelConnected, h.m.State())
}

func TestManager_KeepAlivePings(t *testing.T) {
	h := newHarness(t, Config{PingInterval: 5 * time.Millisecond})

	h.m.Connect()
	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	require.Eventually(t, func() bool {
		for _, f := range conn.controlFrames() {
			if f == websocket.PingMessage {
				return true
			}
		}
		return false
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, domain.ChannelConnected, h.m.State(), "unanswered pings are not failures")
}

func TestManager_RunTearsDownOnCancel(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx) }()

	conn := h.dialer.nextConn(t)
	h.waitState(t, domain.ChannelConnected)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, conn.isClosed())
	assert.Equal(t, domain.ChannelDisconnected, h.m.State())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestManager_WebSocketReconnect(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := connections.Add(1)
		if n == 1 {
			// first connection: two messages plus garbage, then an abrupt close
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"progress","message":"simulating","timestamp":1700000000}`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{not json`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"project_duration":10,"critical_paths":[["A"]]}`))
			return
		}

		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"task_updated","message":"after reconnect"}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	m := NewManager(Options{
		Config: Config{
			Endpoint:       wsURL,
			ReconnectDelay: 20 * time.Millisecond,
			PingInterval:   10 * time.Millisecond,
		},
	})
	defer m.Disconnect()

	m.Connect()

	require.Eventually(t, func() bool { return m.Feed().Len() == 3 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == domain.ChannelConnected }, 5*time.Second, 5*time.Millisecond)

	snap := m.Feed().Snapshot()
	assert.Equal(t, "after reconnect", snap[0].Message)
	assert.Equal(t, domain.EventCalculationComplete, snap[1].Kind)
	assert.Equal(t, "simulating", snap[2].Message)
	assert.Equal(t, int64(1700000000), snap[2].Timestamp.Unix())
	assert.Equal(t, int32(2), connections.Load())

	m.Disconnect()
	assert.Equal(t, domain.ChannelDisconnected, m.State())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), connections.Load(), "no reconnect after teardown")
}
