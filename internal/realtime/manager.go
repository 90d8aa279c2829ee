package realtime

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/observability"
)

// Config configures channel behavior.
type Config struct {
	// Endpoint is the push-notification WebSocket URL.
	Endpoint string
	// ReconnectDelay is the fixed delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// PingInterval is the keep-alive interval while connected. Zero disables pings.
	PingInterval time.Duration
	// WriteTimeout bounds ping and close frame writes.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the WebSocket handshake of the default dialer.
	HandshakeTimeout time.Duration
	// SurfaceConnectionErrors publishes an Error event on every unexpected closure.
	SurfaceConnectionErrors bool
}

// DefaultConfig returns default channel configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:         "ws://127.0.0.1:8000/ws/updates",
		ReconnectDelay:   5 * time.Second,
		PingInterval:     15 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Config     Config
	Dialer     Dialer
	Clock      Clock
	Normalizer *Normalizer
	Feed       *Feed
	Logger     *log.Logger

	// OnEvent is called for every event appended to the feed, in feed order.
	OnEvent func(domain.UpdateEvent)
	// OnStateChange is called on every state transition.
	OnStateChange func(from, to domain.ChannelState)
}

// Manager owns the push-notification channel. It reconnects after a fixed
// delay on unexpected closure and feeds normalized events into a Feed.
//
// All handlers (open, message, close, reconnect timer) run under mu, so they
// never interleave. OnEvent and OnStateChange are called with mu held and
// must not call back into the Manager.
type Manager struct {
	cfg           Config
	dialer        Dialer
	clock         Clock
	normalizer    *Normalizer
	feed          *Feed
	logger        *log.Logger
	onEvent       func(domain.UpdateEvent)
	onStateChange func(from, to domain.ChannelState)

	mu         sync.Mutex
	state      domain.ChannelState
	gen        uint64 // bumped on every connect and on teardown; stale callbacks are ignored
	conn       Conn
	connDone   chan struct{}
	cancelDial context.CancelFunc
	timer      Timer
	timerSeq   uint64

	wg sync.WaitGroup
}

// NewManager creates a Manager in the Disconnected state. Call Connect or Run to start it.
func NewManager(opts Options) *Manager {
	cfg := opts.Config
	defaults := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}

	m := &Manager{
		cfg:           cfg,
		dialer:        opts.Dialer,
		clock:         opts.Clock,
		normalizer:    opts.Normalizer,
		feed:          opts.Feed,
		logger:        opts.Logger,
		onEvent:       opts.OnEvent,
		onStateChange: opts.OnStateChange,
		state:         domain.ChannelDisconnected,
	}
	if m.dialer == nil {
		m.dialer = WSDialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	if m.clock == nil {
		m.clock = systemClock{}
	}
	if m.normalizer == nil {
		m.normalizer = NewNormalizer(m.clock.Now)
	}
	if m.feed == nil {
		m.feed = NewFeed(DefaultFeedCapacity)
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard, "", 0)
	}
	return m
}

// State returns the current channel state.
func (m *Manager) State() domain.ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Feed returns the update feed fed by this manager.
func (m *Manager) Feed() *Feed {
	return m.feed
}

// Endpoint returns the configured channel endpoint.
func (m *Manager) Endpoint() string {
	return m.cfg.Endpoint
}

// Run connects and blocks until ctx is cancelled, then tears the channel down.
func (m *Manager) Run(ctx context.Context) error {
	m.Connect()
	<-ctx.Done()
	m.Disconnect()
	return ctx.Err()
}

// Connect opens the channel. It returns immediately; the outcome arrives
// asynchronously as a state change. No-op unless Disconnected.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.ChannelDisconnected {
		return
	}
	m.connectLocked()
}

// Disconnect tears the channel down: the pending reconnect timer is stopped,
// an in-flight dial is cancelled and the socket is closed. No reconnect
// happens afterwards. Blocks until connection goroutines exit. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.gen++
	if m.conn != nil {
		deadline := m.clock.Now().Add(m.cfg.WriteTimeout)
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	m.closeConnLocked()
	if m.state != domain.ChannelDisconnected {
		m.logger.Printf("disconnected from %s", m.cfg.Endpoint)
		m.setStateLocked(domain.ChannelDisconnected)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// connectLocked enters Connecting and starts an asynchronous dial.
func (m *Manager) connectLocked() {
	if !m.setStateLocked(domain.ChannelConnecting) {
		return
	}

	m.gen++
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel

	m.wg.Add(1)
	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	conn, err := m.dialer.Dial(ctx, m.cfg.Endpoint)
	if err != nil {
		m.handleClose(gen, &ConnectionError{Op: "dial", Err: err})
		return
	}
	m.handleOpen(gen, conn)
}

// handleOpen is the socket-open handler.
func (m *Manager) handleOpen(gen uint64, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != domain.ChannelConnecting {
		conn.Close()
		return
	}

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.stopTimerLocked()

	m.conn = conn
	done := make(chan struct{})
	m.connDone = done
	m.setStateLocked(domain.ChannelConnected)
	m.logger.Printf("connected to %s", m.cfg.Endpoint)
	observability.RecordConnect()

	m.wg.Add(1)
	go m.readLoop(gen, conn)

	if m.cfg.PingInterval > 0 {
		m.wg.Add(1)
		go m.pingLoop(conn, done)
	}
}

// readLoop delivers payloads in arrival order until the socket fails.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	defer m.wg.Done()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, &ConnectionError{Op: "read", Err: err})
			return
		}
		m.handleMessage(gen, payload)
	}
}

// handleMessage is the socket-message handler.
func (m *Manager) handleMessage(gen uint64, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	observability.RecordMessageReceived()

	event, err := m.normalizer.Normalize(payload)
	if err != nil {
		m.logger.Printf("dropping message: %v", err)
		observability.RecordMessageDropped("parse")
		return
	}
	m.publishLocked(event)
}

// handleClose is the socket-close handler. It also receives dial failures.
func (m *Manager) handleClose(gen uint64, cerr *ConnectionError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state == domain.ChannelDisconnected {
		return
	}

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.closeConnLocked()
	if m.state != domain.ChannelReconnecting {
		m.setStateLocked(domain.ChannelReconnecting)
	}
	m.logger.Printf("channel lost (%v), reconnecting in %v", cerr, m.cfg.ReconnectDelay)

	if m.cfg.SurfaceConnectionErrors {
		m.publishLocked(domain.UpdateEvent{
			Kind:      domain.EventError,
			Message:   "Connection to update channel lost",
			Timestamp: m.clock.Now().UTC(),
			Details:   cerr.Error(),
		})
	}

	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (m *Manager) scheduleReconnectLocked() {
	if m.timer != nil {
		return
	}
	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.handleReconnectTimer(seq)
	})
	observability.RecordReconnectScheduled()
}

// handleReconnectTimer is the reconnect-timer-fire handler.
func (m *Manager) handleReconnectTimer(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer == nil || seq != m.timerSeq {
		return
	}
	m.timer = nil

	if m.state != domain.ChannelReconnecting {
		return
	}
	m.connectLocked()
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeConnLocked() {
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) publishLocked(event domain.UpdateEvent) {
	m.feed.Append(event)
	observability.RecordEventPublished(event.Kind.String(), m.feed.Len())
	if m.onEvent != nil {
		m.onEvent(event.Clone())
	}
}

// setStateLocked applies a transition. Illegal edges are refused and logged.
func (m *Manager) setStateLocked(to domain.ChannelState) bool {
	from := m.state
	if from == to {
		return true
	}
	if !domain.CanTransition(from, to) {
		m.logger.Printf("refusing illegal channel transition %s -> %s", from, to)
		return false
	}

	m.state = to
	observability.SetChannelState(int(to))
	if m.onStateChange != nil {
		m.onStateChange(from, to)
	}
	return true
}

// pingLoop sends keep-alive ping frames until done is closed. A missing pong
// is not treated as a failure; the read loop detects dead sockets.
func (m *Manager) pingLoop(conn Conn, done <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.logger.Printf("keep-alive ping failed: %v", err)
			}
		}
	}
}
