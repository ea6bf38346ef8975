// ABOUTME: Resilient connection manager for the hookline relay channel.
// ABOUTME: Owns the transport lifecycle, reconnect scheduling, and subscriber notification.

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 5 * time.Second
	// settleDelay separates the close half of a Reconnect from the new dial
	// so an in-flight teardown never overlaps a fresh open.
	settleDelay = 250 * time.Millisecond
)

// ErrNotConnected is returned by Send when the channel is not established.
// The envelope is dropped; there is no outbound queue.
var ErrNotConnected = errors.New("relay not connected")

// ErrDisabled is returned by Connect when the relay is switched off in
// configuration or console settings.
var ErrDisabled = errors.New("relay disabled")

// Config is the relay connection surface exposed to configuration and the
// console settings form.
type Config struct {
	// Address is the WebSocket URL of the relay server.
	Address string
	// ReconnectInterval is the fixed delay between automatic retries.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds consecutive automatic retries before the
	// manager settles at StatusErrored.
	MaxReconnectAttempts int
	// Enabled gates whether the manager connects at all.
	Enabled bool
}

// Stats is a point-in-time snapshot of manager counters for the dashboard
// and metrics.
type Stats struct {
	Dials         uint64
	FramesIn      uint64
	FramesDropped uint64
	DroppedSends  uint64
	RetryAttempts int
}

// ManagerParams bundles the dependencies for NewManager.
type ManagerParams struct {
	Config Config
	// Dialer opens transports; defaults to WebSocketDialer.
	Dialer Dialer
	Logger *slog.Logger
}

// Manager keeps a persistent, bidirectional, message-oriented channel to the
// relay server alive across network interruptions. One Manager is created
// per target address and persists across many transport attempts; each
// attempt is a disposable child resource.
//
// All state transitions are serialized by mu. Every attempt is tagged with a
// generation number; events arriving from an abandoned attempt (a late open
// after Disconnect, a close racing a newer dial, a retry timer that lost a
// Stop race) re-check the generation and are ignored.
type Manager struct {
	dialer Dialer
	clock  clock
	logger *slog.Logger
	disp   *dispatcher

	mu     sync.Mutex
	cfg    Config
	status Status
	gen    uint64
	tr     Transport
	// manual is set, under mu, before a caller-requested transport close so
	// the close transition observes it synchronously and skips the retry
	// policy.
	manual bool
	retry  *backoff
	// settle is the pending delayed connect scheduled by Reconnect.
	settle timer
	closed bool

	dials         uint64
	framesIn      uint64
	framesDropped uint64
	droppedSends  uint64
}

// NewManager creates a relay connection manager. It does not connect; call
// Connect (or Reconnect) to start.
func NewManager(p ManagerParams) *Manager {
	if p.Dialer == nil {
		p.Dialer = WebSocketDialer{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default().With("component", "relay")
	}
	clk := realClock{}
	return &Manager{
		dialer: p.Dialer,
		clock:  clk,
		logger: p.Logger,
		disp:   newDispatcher(p.Logger),
		cfg:    p.Config,
		status: StatusIdle,
		retry:  newBackoff(p.Config.ReconnectInterval, p.Config.MaxReconnectAttempts, clk),
	}
}

// Connect starts a connection attempt. It returns immediately: progress is
// observed through status notifications. Calling it while a connection is
// already live or being dialed is a no-op, so concurrent callers cannot
// create duplicate transports.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	if !m.cfg.Enabled {
		m.logger.Info("relay disabled, not connecting")
		return ErrDisabled
	}
	if m.status == StatusConnecting || m.status == StatusConnected {
		return nil
	}
	m.startAttemptLocked()
	return nil
}

// Disconnect closes the channel and suppresses automatic reconnection. It is
// valid from any state, always transitions to StatusDisconnected, and
// deterministically cancels any pending retry timer before returning.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.retry.cancel()
	m.cancelSettleLocked()
	tr := m.tr
	if tr != nil {
		// Flag first, close after: the close transition must observe it.
		m.manual = true
	} else {
		// No live transport, but a dial may be in flight; abandon it.
		m.gen++
	}
	// Notify unconditionally, even when already disconnected: callers use
	// this as an acknowledgement of the manual disconnect.
	m.status = StatusDisconnected
	m.disp.statusChange(StatusDisconnected)
	m.mu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			m.logger.Debug("closing transport", "error", err)
		}
	}
}

// Reconnect tears down any live connection, resets the attempt budget (the
// caller's manual override of exhaustion), and dials again after a short
// settle delay.
func (m *Manager) Reconnect() {
	m.Disconnect()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.retry.reset()
	gen := m.gen
	m.settle = m.clock.AfterFunc(settleDelay, func() {
		m.settleFired(gen)
	})
}

// cancelSettleLocked stops a pending settle timer scheduled by Reconnect.
// Idempotent; caller holds mu.
func (m *Manager) cancelSettleLocked() {
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
}

func (m *Manager) settleFired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle = nil
	if m.closed || gen != m.gen || !m.cfg.Enabled {
		return
	}
	if m.status == StatusConnecting || m.status == StatusConnected {
		return
	}
	m.startAttemptLocked()
}

// Send encodes the envelope and writes it to the live transport. When the
// channel is not connected the envelope is dropped and ErrNotConnected
// returned; there is no outbound buffering. Encode failures surface here,
// synchronously.
func (m *Manager) Send(env Envelope) error {
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.status != StatusConnected || m.tr == nil {
		m.droppedSends++
		status := m.status
		m.mu.Unlock()
		m.logger.Warn("dropping outbound envelope", "type", env.Type, "status", status.String())
		return ErrNotConnected
	}
	tr := m.tr
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := tr.Write(ctx, raw); err != nil {
		return fmt.Errorf("writing %s frame: %w", env.Type, err)
	}
	return nil
}

// Subscribe registers observer callbacks for messages and status changes.
// Either callback may be nil. The returned handle is passed to Unsubscribe;
// subscriber lifetime is independent of any single transport attempt.
func (m *Manager) Subscribe(onMsg func(Envelope), onStatus func(Status)) uint64 {
	return m.disp.subscribe(onMsg, onStatus)
}

// Unsubscribe removes a subscriber. Safe to call from within a callback.
func (m *Manager) Unsubscribe(id uint64) {
	m.disp.unsubscribe(id)
}

// CurrentStatus returns the status at this instant.
func (m *Manager) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastMessage returns the most recently dispatched envelope, if any.
func (m *Manager) LastMessage() (Envelope, bool) {
	return m.disp.lastMessage()
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Dials:         m.dials,
		FramesIn:      m.framesIn,
		FramesDropped: m.framesDropped,
		DroppedSends:  m.droppedSends,
		RetryAttempts: m.retry.attempts,
	}
}

// CurrentConfig returns a copy of the effective configuration.
func (m *Manager) CurrentConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// ApplySettings updates the retry policy and enable gate at runtime, used by
// the console settings form. Disabling drops the connection.
func (m *Manager) ApplySettings(interval time.Duration, maxAttempts int, enabled bool) {
	m.mu.Lock()
	m.cfg.ReconnectInterval = interval
	m.cfg.MaxReconnectAttempts = maxAttempts
	wasEnabled := m.cfg.Enabled
	m.cfg.Enabled = enabled
	m.retry.configure(interval, maxAttempts)
	m.mu.Unlock()

	if wasEnabled && !enabled {
		m.Disconnect()
	}
}

// Close shuts the manager down for good: transport closed, timers cancelled,
// notifier stopped. The manager cannot be reused afterwards.
func (m *Manager) Close() {
	m.Disconnect()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.disp.close()
}

// startAttemptLocked begins a new transport attempt. Caller holds mu.
// Entering a new attempt cancels stale timers and invalidates events from
// every earlier attempt by bumping the generation.
func (m *Manager) startAttemptLocked() {
	m.retry.cancel()
	m.cancelSettleLocked()
	m.manual = false
	m.gen++
	gen := m.gen
	addr := m.cfg.Address
	m.dials++
	m.setStatusLocked(StatusConnecting)
	go m.dial(gen, addr)
}

func (m *Manager) dial(gen uint64, addr string) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	tr, err := m.dialer.Dial(ctx, addr)
	cancel()
	if err != nil {
		m.logger.Debug("dial failed", "address", addr, "error", err)
		m.transportClosed(gen)
		return
	}
	if !m.transportOpened(gen, tr) {
		// The attempt was abandoned while the dial was in flight.
		tr.Close()
		return
	}
	m.readLoop(gen, tr)
}

// transportOpened handles a successful open. It reports false when the
// attempt is stale and the transport should be discarded.
func (m *Manager) transportOpened(gen uint64, tr Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed {
		return false
	}
	m.tr = tr
	m.manual = false
	m.retry.reset()
	m.setStatusLocked(StatusConnected)
	m.logger.Info("relay connected", "address", m.cfg.Address)
	return true
}

func (m *Manager) readLoop(gen uint64, tr Transport) {
	for {
		raw, err := tr.Read(context.Background())
		if err != nil {
			m.transportClosed(gen)
			return
		}
		m.handleFrame(gen, raw)
	}
}

// handleFrame decodes one inbound frame and hands it to the dispatcher.
// Malformed frames are dropped with a diagnostic; the connection stays open.
func (m *Manager) handleFrame(gen uint64, raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		m.mu.Lock()
		m.framesDropped++
		m.mu.Unlock()
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.status != StatusConnected {
		m.mu.Unlock()
		return
	}
	m.framesIn++
	m.disp.message(env)
	m.mu.Unlock()
}

// transportClosed is the single transition for both transport errors and
// ordinary closes; the two are indistinguishable at this layer. For an
// unplanned close it consults the retry policy; a manual close was already
// transitioned by Disconnect and only needs the flag cleared.
func (m *Manager) transportClosed(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.tr = nil

	if m.manual {
		m.manual = false
		return
	}

	m.setStatusLocked(StatusDisconnected)
	if m.retry.next(func() { m.retryFired(gen) }) {
		m.logger.Info("relay disconnected, retry scheduled",
			"attempt", m.retry.attempts,
			"max_attempts", m.retry.max,
			"interval", m.retry.interval,
		)
		return
	}

	m.logger.Error("relay reconnect attempts exhausted",
		"attempts", m.retry.attempts-1,
	)
	m.setStatusLocked(StatusErrored)
}

// retryFired runs when the backoff timer elapses. Stop is called on every
// state entry and on Disconnect, so this is normally unreachable for a
// cancelled cycle; the generation check closes the window where the timer
// was already in flight when Stop returned false.
func (m *Manager) retryFired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.status != StatusDisconnected {
		return
	}
	m.startAttemptLocked()
}

// setStatusLocked records a transition and queues the notification. Caller
// holds mu; the dispatcher preserves enqueue order, so subscribers observe
// transitions in the order they happened.
func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.disp.statusChange(s)
}
