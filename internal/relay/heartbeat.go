// ABOUTME: Heartbeat responder that answers server pings with pongs.
// ABOUTME: Layered on the channel as an ordinary subscriber, not part of the state machine.

package relay

import "log/slog"

// Heartbeat answers ping envelopes with pongs so the relay server's liveness
// checks pass. It is deliberately just a subscriber: heartbeat is a policy on
// top of the channel, and removing it never touches connection logic.
type Heartbeat struct {
	mgr    *Manager
	logger *slog.Logger
	sub    uint64
}

// NewHeartbeat attaches a heartbeat responder to the manager.
func NewHeartbeat(mgr *Manager, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default().With("component", "heartbeat")
	}
	h := &Heartbeat{mgr: mgr, logger: logger}
	h.sub = mgr.Subscribe(h.onMessage, nil)
	return h
}

func (h *Heartbeat) onMessage(env Envelope) {
	if env.Type != TypePing {
		return
	}
	pong := Envelope{Type: TypePong, Payload: env.Payload}
	if err := h.mgr.Send(pong); err != nil {
		h.logger.Debug("pong not sent", "error", err)
	}
}

// Stop detaches the responder.
func (h *Heartbeat) Stop() {
	h.mgr.Unsubscribe(h.sub)
}
