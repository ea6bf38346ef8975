// ABOUTME: Tests for the relay connection manager lifecycle and retry policy.
// ABOUTME: Uses a scripted dialer, fake transports, and a fake clock for determinism.

package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a scriptable Transport. Inbound frames are injected with
// deliver; failConn simulates an unplanned close.
type fakeTransport struct {
	mu     sync.Mutex
	writes [][]byte

	frames chan []byte
	broken chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan []byte, 16),
		broken: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.broken:
		return nil, errors.New("connection lost")
	case raw := <-t.frames:
		return raw, nil
	}
}

func (t *fakeTransport) Write(ctx context.Context, data []byte) error {
	select {
	case <-t.broken:
		return errors.New("connection lost")
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.broken) })
	return nil
}

// failConn simulates the remote end dropping the connection.
func (t *fakeTransport) failConn() {
	t.once.Do(func() { close(t.broken) })
}

func (t *fakeTransport) sentWrites() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// fakeDialer counts dials and fails the first failures attempts.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int
	conns    []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	tr := newFakeTransport()
	d.conns = append(d.conns, tr)
	return tr, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastConn() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeClock collects scheduled timers and fires them when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clk     *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// advance moves the fake clock forward, firing due timers in deadline order.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// scheduledAt returns the deadlines of every timer ever scheduled, stopped
// or not, in scheduling order.
func (c *fakeClock) scheduledAt() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.at
	}
	return out
}

func testConfig() Config {
	return Config{
		Address:              "ws://relay.test/console",
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: 3,
		Enabled:              true,
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDialer, *fakeClock) {
	t.Helper()
	dialer := &fakeDialer{}
	clk := &fakeClock{}
	m := NewManager(ManagerParams{Config: cfg, Dialer: dialer, Logger: slog.Default()})
	m.clock = clk
	m.retry.clock = clk
	t.Cleanup(m.Close)
	return m, dialer, clk
}

// waitUntil polls cond until it holds or the deadline passes. Dialing runs on
// its own goroutine, so tests poll for its effects.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func connectAndWait(t *testing.T, m *Manager, d *fakeDialer) *fakeTransport {
	t.Helper()
	if err := m.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitUntil(t, "connected", func() bool { return m.CurrentStatus() == StatusConnected })
	return d.lastConn()
}

func TestConnectLifecycle(t *testing.T) {
	t.Run("successful connect reaches Connected", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		connectAndWait(t, m, d)
		if got := d.dialCount(); got != 1 {
			t.Fatalf("expected 1 dial, got %d", got)
		}
	})

	t.Run("connect is a no-op while connecting or connected", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		connectAndWait(t, m, d)
		for i := 0; i < 5; i++ {
			m.Connect()
		}
		if got := d.dialCount(); got != 1 {
			t.Fatalf("expected 1 dial after repeated Connect, got %d", got)
		}
	})

	t.Run("disabled manager refuses to connect", func(t *testing.T) {
		cfg := testConfig()
		cfg.Enabled = false
		m, d, _ := newTestManager(t, cfg)
		if err := m.Connect(); !errors.Is(err, ErrDisabled) {
			t.Fatalf("expected ErrDisabled, got %v", err)
		}
		if d.dialCount() != 0 {
			t.Fatal("disabled manager dialed")
		}
	})

	t.Run("successful connect resets the attempt counter", func(t *testing.T) {
		m, d, clk := newTestManager(t, testConfig())
		d.failures = 2

		m.Connect()
		waitUntil(t, "first retry scheduled", func() bool { return len(clk.scheduledAt()) == 1 })
		clk.advance(3 * time.Second)
		waitUntil(t, "second retry scheduled", func() bool { return len(clk.scheduledAt()) == 2 })
		clk.advance(3 * time.Second)
		waitUntil(t, "connected", func() bool { return m.CurrentStatus() == StatusConnected })

		if got := m.Stats().RetryAttempts; got != 0 {
			t.Fatalf("attempt counter not reset after success: %d", got)
		}
	})
}

func TestUnplannedClose(t *testing.T) {
	t.Run("schedules a retry and reconnects", func(t *testing.T) {
		m, d, clk := newTestManager(t, testConfig())
		tr := connectAndWait(t, m, d)

		tr.failConn()
		waitUntil(t, "disconnected", func() bool { return m.CurrentStatus() == StatusDisconnected })

		clk.advance(3 * time.Second)
		waitUntil(t, "reconnected", func() bool { return m.CurrentStatus() == StatusConnected })
		if got := d.dialCount(); got != 2 {
			t.Fatalf("expected 2 dials, got %d", got)
		}
	})

	t.Run("exhaustion settles at Errored with no extra timer", func(t *testing.T) {
		cfg := testConfig() // 3 attempts, 3s interval
		m, d, clk := newTestManager(t, cfg)
		d.failures = -1 // fail forever

		m.Connect()
		waitUntil(t, "initial failure", func() bool { return d.dialCount() == 1 })
		for i := 0; i < 3; i++ {
			want := i + 1
			waitUntil(t, "retry scheduled", func() bool { return len(clk.scheduledAt()) == want })
			clk.advance(3 * time.Second)
		}
		waitUntil(t, "errored", func() bool { return m.CurrentStatus() == StatusErrored })

		// Exactly 3 retry timers, spaced one interval apart.
		deadlines := clk.scheduledAt()
		if len(deadlines) != 3 {
			t.Fatalf("expected 3 scheduled retries, got %d", len(deadlines))
		}
		for i := 1; i < len(deadlines); i++ {
			if gap := deadlines[i] - deadlines[i-1]; gap < 3*time.Second {
				t.Fatalf("retry %d scheduled only %v after previous", i, gap)
			}
		}
		if got := d.dialCount(); got != 4 {
			t.Fatalf("expected 4 dials (initial + 3 retries), got %d", got)
		}

		// No automatic activity from Errored.
		clk.advance(time.Minute)
		if got := d.dialCount(); got != 4 {
			t.Fatalf("dialed from Errored without caller action: %d", got)
		}
	})

	t.Run("explicit connect resumes from Errored", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxReconnectAttempts = 1
		m, d, clk := newTestManager(t, cfg)
		d.failures = 2

		m.Connect()
		waitUntil(t, "retry scheduled", func() bool { return len(clk.scheduledAt()) == 1 })
		clk.advance(3 * time.Second)
		waitUntil(t, "errored", func() bool { return m.CurrentStatus() == StatusErrored })

		connectAndWait(t, m, d)
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("suppresses reconnection of a live transport", func(t *testing.T) {
		m, d, clk := newTestManager(t, testConfig())
		connectAndWait(t, m, d)

		m.Disconnect()
		waitUntil(t, "disconnected", func() bool { return m.CurrentStatus() == StatusDisconnected })

		clk.advance(time.Minute)
		time.Sleep(10 * time.Millisecond)
		if got := d.dialCount(); got != 1 {
			t.Fatalf("reconnected after manual disconnect: %d dials", got)
		}
	})

	t.Run("cancels a pending retry timer", func(t *testing.T) {
		m, d, clk := newTestManager(t, testConfig())
		d.failures = -1

		m.Connect()
		waitUntil(t, "failure", func() bool { return d.dialCount() == 1 })
		waitUntil(t, "retry scheduled", func() bool { return len(clk.scheduledAt()) == 1 })

		m.Disconnect()
		clk.advance(time.Minute)
		time.Sleep(10 * time.Millisecond)
		if got := d.dialCount(); got != 1 {
			t.Fatalf("cancelled timer still dialed: %d dials", got)
		}
		if got := m.CurrentStatus(); got != StatusDisconnected {
			t.Fatalf("status = %s, want disconnected", got)
		}
	})

	t.Run("valid with no transport open", func(t *testing.T) {
		m, _, _ := newTestManager(t, testConfig())

		var mu sync.Mutex
		var seen []Status
		m.Subscribe(nil, func(s Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})

		m.Disconnect()
		waitUntil(t, "notification", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) == 1 && seen[0] == StatusDisconnected
		})
	})
}

func TestReconnect(t *testing.T) {
	t.Run("resets attempts and dials after the settle delay", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxReconnectAttempts = 1
		m, d, clk := newTestManager(t, cfg)
		d.failures = 2

		m.Connect()
		waitUntil(t, "retry scheduled", func() bool { return len(clk.scheduledAt()) == 1 })
		clk.advance(3 * time.Second)
		waitUntil(t, "errored", func() bool { return m.CurrentStatus() == StatusErrored })

		m.Reconnect()
		clk.advance(settleDelay)
		waitUntil(t, "reconnected", func() bool { return m.CurrentStatus() == StatusConnected })
		if got := m.Stats().RetryAttempts; got != 0 {
			t.Fatalf("reconnect did not reset attempts: %d", got)
		}
	})

	t.Run("disconnect stops the pending settle timer", func(t *testing.T) {
		m, d, clk := newTestManager(t, testConfig())
		connectAndWait(t, m, d)

		m.Reconnect()
		m.Disconnect()

		clk.mu.Lock()
		settle := clk.timers[len(clk.timers)-1]
		stopped := settle.stopped
		clk.mu.Unlock()
		if !stopped {
			t.Fatal("settle timer still pending after disconnect")
		}
	})

	t.Run("disconnect during the settle window wins", func(t *testing.T) {
		m, d, clk := newTestManager(t, testConfig())
		connectAndWait(t, m, d)

		m.Reconnect()
		m.Disconnect()
		clk.advance(time.Minute)
		time.Sleep(10 * time.Millisecond)
		if got := d.dialCount(); got != 1 {
			t.Fatalf("settle timer dialed after disconnect: %d dials", got)
		}
	})
}

func TestSend(t *testing.T) {
	t.Run("writes an encoded frame when connected", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		tr := connectAndWait(t, m, d)

		env, err := NewEnvelope(TypeWebhook, map[string]string{"id": "wh-1"})
		if err != nil {
			t.Fatalf("building envelope: %v", err)
		}
		if err := m.Send(env); err != nil {
			t.Fatalf("send: %v", err)
		}

		writes := tr.sentWrites()
		if len(writes) != 1 {
			t.Fatalf("expected 1 write, got %d", len(writes))
		}
	})

	t.Run("drops and reports when not connected", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())

		env, _ := NewEnvelope(TypeWebhook, map[string]string{"id": "wh-2"})
		if err := m.Send(env); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
		if d.dialCount() != 0 {
			t.Fatal("send triggered a dial")
		}
		if got := m.Stats().DroppedSends; got != 1 {
			t.Fatalf("dropped send not counted: %d", got)
		}
	})

	t.Run("encode failure surfaces synchronously", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		connectAndWait(t, m, d)

		if _, err := NewEnvelope(TypeLog, make(chan int)); err == nil {
			t.Fatal("expected marshal error for channel payload")
		}
		if err := m.Send(Envelope{}); !errors.Is(err, ErrMissingType) {
			t.Fatalf("expected ErrMissingType, got %v", err)
		}
	})
}

func TestInboundFrames(t *testing.T) {
	t.Run("malformed frame is dropped without a status change", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		tr := connectAndWait(t, m, d)

		var mu sync.Mutex
		var got []Envelope
		m.Subscribe(func(env Envelope) {
			mu.Lock()
			got = append(got, env)
			mu.Unlock()
		}, nil)

		tr.frames <- []byte("definitely not json")
		waitUntil(t, "frame dropped", func() bool { return m.Stats().FramesDropped == 1 })

		if st := m.CurrentStatus(); st != StatusConnected {
			t.Fatalf("status changed to %s on malformed frame", st)
		}
		mu.Lock()
		delivered := len(got)
		mu.Unlock()
		if delivered != 0 {
			t.Fatalf("malformed frame delivered to subscribers: %d", delivered)
		}
	})

	t.Run("well-formed frames reach subscribers in registration order", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		tr := connectAndWait(t, m, d)

		var mu sync.Mutex
		var order []string
		m.Subscribe(func(Envelope) { mu.Lock(); order = append(order, "first"); mu.Unlock() }, nil)
		m.Subscribe(func(Envelope) { mu.Lock(); order = append(order, "second"); mu.Unlock() }, nil)

		tr.frames <- []byte(`{"type":"webhook","payload":{"id":"wh-3"}}`)
		waitUntil(t, "delivery", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == 2
		})

		mu.Lock()
		defer mu.Unlock()
		if order[0] != "first" || order[1] != "second" {
			t.Fatalf("delivery order %v", order)
		}

		last, ok := m.LastMessage()
		if !ok || last.Type != TypeWebhook {
			t.Fatalf("last message = %+v (ok=%v)", last, ok)
		}
	})
}

func TestApplySettings(t *testing.T) {
	t.Run("disabling drops the connection", func(t *testing.T) {
		m, d, _ := newTestManager(t, testConfig())
		connectAndWait(t, m, d)

		m.ApplySettings(5*time.Second, 10, false)
		waitUntil(t, "disconnected", func() bool { return m.CurrentStatus() == StatusDisconnected })
		if err := m.Connect(); !errors.Is(err, ErrDisabled) {
			t.Fatalf("expected ErrDisabled after disable, got %v", err)
		}
	})
}
