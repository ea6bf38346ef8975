// ABOUTME: Relay subscriber that persists webhook and log envelopes as deliveries
// ABOUTME: Applies ban rules and a TTL seen-set before writing to the store

package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hookline/console/internal/relay"
	"github.com/hookline/console/internal/store"
)

const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
	writeTimeout  = 5 * time.Second

	// Event type under which relay log lines are recorded.
	logEventType = "relay.log"
)

// webhookPayload is the body of a "webhook" envelope from the relay.
type webhookPayload struct {
	ID         string          `json:"id"`
	EndpointID string          `json:"endpoint_id"`
	EventType  string          `json:"event_type"`
	SourceIP   string          `json:"source_ip,omitempty"`
	Status     string          `json:"status,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// logPayload is the body of a "log" envelope from the relay.
type logPayload struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

// DeliveryCounter counts recorded deliveries, by status.
type DeliveryCounter interface {
	RecordDelivery(status string)
}

// RecorderStore is the slice of the store the recorder needs.
type RecorderStore interface {
	store.DeliveryStore
	store.BanStore
}

// Recorder bridges the relay to the store: every inbound webhook or log
// envelope becomes a Delivery row the console can show.
type Recorder struct {
	store   RecorderStore
	seen    *seenSet
	counter DeliveryCounter
	logger  *slog.Logger
	subID   uint64
}

// New creates a Recorder and subscribes it to the manager. The counter may
// be nil when metrics are disabled.
func New(m *relay.Manager, st RecorderStore, counter DeliveryCounter) *Recorder {
	r := &Recorder{
		store:   st,
		seen:    newSeenSet(dedupeTTL, dedupeMaxSize),
		counter: counter,
		logger:  slog.Default().With("component", "recorder"),
	}
	r.subID = m.Subscribe(r.handle, nil)
	return r
}

// Stop detaches the recorder from the manager.
func (r *Recorder) Stop(m *relay.Manager) {
	m.Unsubscribe(r.subID)
}

func (r *Recorder) handle(env relay.Envelope) {
	switch env.Type {
	case relay.TypeWebhook:
		r.handleWebhook(env)
	case relay.TypeLog:
		r.handleLog(env)
	}
}

func (r *Recorder) handleWebhook(env relay.Envelope) {
	var p webhookPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		r.logger.Warn("dropping malformed webhook payload", "error", err)
		return
	}
	if p.EventType == "" {
		r.logger.Warn("dropping webhook without event type")
		return
	}

	if p.ID != "" && r.seen.checkAndMark(p.ID) {
		r.logger.Debug("skipping duplicate webhook", "id", p.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if r.banned(ctx, &p) {
		return
	}

	status := p.Status
	switch status {
	case store.DeliveryReceived, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		status = store.DeliveryReceived
	}

	d := &store.Delivery{
		ID:         p.ID,
		EndpointID: p.EndpointID,
		EventType:  p.EventType,
		Payload:    string(p.Body),
		Status:     status,
	}
	if err := r.store.InsertDelivery(ctx, d); err != nil {
		r.logger.Error("failed to record delivery", "event_type", p.EventType, "error", err)
		return
	}

	if r.counter != nil {
		r.counter.RecordDelivery(status)
	}
	r.logger.Debug("recorded delivery", "id", d.ID, "event_type", p.EventType, "status", status)
}

// banned checks every applicable ban kind. A store error fails open so a
// flaky database cannot silence the delivery log.
func (r *Recorder) banned(ctx context.Context, p *webhookPayload) bool {
	checks := []struct {
		kind  string
		value string
	}{
		{store.BanKindEventType, p.EventType},
		{store.BanKindEndpoint, p.EndpointID},
		{store.BanKindIP, p.SourceIP},
	}

	for _, c := range checks {
		if c.value == "" {
			continue
		}
		hit, err := r.store.IsBanned(ctx, c.kind, c.value)
		if err != nil {
			r.logger.Warn("ban check failed", "kind", c.kind, "error", err)
			continue
		}
		if hit {
			r.logger.Info("dropping banned webhook", "kind", c.kind, "value", c.value)
			return true
		}
	}
	return false
}

func (r *Recorder) handleLog(env relay.Envelope) {
	var p logPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		r.logger.Warn("dropping malformed log payload", "error", err)
		return
	}
	if p.Message == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	d := &store.Delivery{
		EventType: logEventType,
		Payload:   p.Message,
		Status:    store.DeliveryReceived,
	}
	if err := r.store.InsertDelivery(ctx, d); err != nil {
		r.logger.Error("failed to record relay log line", "error", err)
	}
}
