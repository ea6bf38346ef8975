// ABOUTME: Fans out decoded envelopes and status transitions to subscribers.
// ABOUTME: A single notifier goroutine preserves ordering; registration is safe mid-dispatch.

package relay

import (
	"log/slog"
	"sync"
)

// notifyBuffer bounds the queue between the manager and the notifier
// goroutine. Overflow drops the event with a warning rather than blocking
// the transport read loop behind a slow subscriber.
const notifyBuffer = 64

// Subscriber callbacks. Either may be nil if the observer only cares about
// one kind of notification. Callbacks run on the dispatcher's notifier
// goroutine, never concurrently with each other, and may freely call back
// into Subscribe, Unsubscribe, or the manager.
type subscriber struct {
	id       uint64
	onMsg    func(Envelope)
	onStatus func(Status)
}

type dispatchEvent struct {
	env    *Envelope
	status Status
}

type dispatcher struct {
	mu     sync.Mutex
	subs   []subscriber // registration order
	nextID uint64
	last   *Envelope

	events chan dispatchEvent
	done   chan struct{}
	logger *slog.Logger
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		events: make(chan dispatchEvent, notifyBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.run()
	return d
}

// subscribe registers a callback pair and returns a handle for unsubscribe.
// Registration during an in-flight dispatch takes effect for the next event,
// never retroactively.
func (d *dispatcher) subscribe(onMsg func(Envelope), onStatus func(Status)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subs = append(d.subs, subscriber{id: d.nextID, onMsg: onMsg, onStatus: onStatus})
	return d.nextID
}

func (d *dispatcher) unsubscribe(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// message enqueues an envelope for fan-out. Called by the manager with its
// own lock held, so enqueue order matches transition order.
func (d *dispatcher) message(env Envelope) {
	d.enqueue(dispatchEvent{env: &env})
}

func (d *dispatcher) statusChange(st Status) {
	d.enqueue(dispatchEvent{status: st})
}

func (d *dispatcher) enqueue(ev dispatchEvent) {
	select {
	case d.events <- ev:
	case <-d.done:
	default:
		d.logger.Warn("dispatch queue full, dropping event")
	}
}

// lastMessage returns the most recently dispatched envelope, for observers
// that poll rather than subscribe.
func (d *dispatcher) lastMessage() (Envelope, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Envelope{}, false
	}
	return *d.last, true
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

// deliver fans one event out to a snapshot of the current subscribers, in
// registration order. Iterating a copy means callbacks can mutate the
// registry without corrupting the walk.
func (d *dispatcher) deliver(ev dispatchEvent) {
	d.mu.Lock()
	if ev.env != nil {
		d.last = ev.env
	}
	snapshot := make([]subscriber, len(d.subs))
	copy(snapshot, d.subs)
	d.mu.Unlock()

	for _, s := range snapshot {
		if ev.env != nil {
			if s.onMsg != nil {
				s.onMsg(*ev.env)
			}
		} else if s.onStatus != nil {
			s.onStatus(ev.status)
		}
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}
