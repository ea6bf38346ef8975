// ABOUTME: Store interface and data types for hookline-console persistence
// ABOUTME: Defines relay keys, endpoints, deliveries, ban rules, and settings

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrKeyExists is returned when creating a relay key whose name is taken
var ErrKeyExists = errors.New("relay key already exists")

// ErrBanExists is returned when an identical ban rule already exists
var ErrBanExists = errors.New("ban rule already exists")

// RelayKey is an API credential for the relay. Only a bcrypt hash of the
// token is stored; the plaintext is shown once at creation time. Prefix
// keeps the first characters for display so admins can tell keys apart.
type RelayKey struct {
	ID         string
	Name       string
	TokenHash  string
	Prefix     string
	CreatedBy  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the key has been revoked.
func (k *RelayKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Endpoint is a webhook destination the relay forwards to.
type Endpoint struct {
	ID          string
	Name        string
	Destination string
	Description string // markdown, rendered in the console
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Delivery status values.
const (
	DeliveryReceived  = "received"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Delivery is one webhook (or relay log line) that passed through the
// channel, kept for the console's log viewer.
type Delivery struct {
	ID         string
	EndpointID string // empty for relay log entries
	EventType  string
	Payload    string
	Status     string
	CreatedAt  time.Time
}

// Ban rule kinds.
const (
	BanKindIP        = "ip"
	BanKindEndpoint  = "endpoint"
	BanKindEventType = "event_type"
)

// BanRule blocks traffic by source IP, endpoint, or event type.
type BanRule struct {
	ID        string
	Kind      string
	Value     string
	Reason    string
	CreatedBy string
	CreatedAt time.Time
}

// DeliveryFilter narrows ListDeliveries results.
type DeliveryFilter struct {
	EndpointID string
	Status     string
	Limit      int
}

// KeyStore defines relay key persistence.
type KeyStore interface {
	CreateRelayKey(ctx context.Context, key *RelayKey) error
	GetRelayKey(ctx context.Context, id string) (*RelayKey, error)
	ListRelayKeys(ctx context.Context) ([]*RelayKey, error)
	RevokeRelayKey(ctx context.Context, id string) error
	TouchRelayKey(ctx context.Context, id string) error
	DeleteRelayKey(ctx context.Context, id string) error
}

// EndpointStore defines endpoint persistence.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
}

// DeliveryStore defines delivery log persistence.
type DeliveryStore interface {
	InsertDelivery(ctx context.Context, d *Delivery) error
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*Delivery, error)
	CountDeliveriesSince(ctx context.Context, since time.Time) (int, error)
	PurgeDeliveries(ctx context.Context, olderThan time.Time) (int64, error)
}

// BanStore defines ban rule persistence.
type BanStore interface {
	CreateBanRule(ctx context.Context, rule *BanRule) error
	DeleteBanRule(ctx context.Context, id string) error
	ListBanRules(ctx context.Context) ([]*BanRule, error)
	IsBanned(ctx context.Context, kind, value string) (bool, error)
}

// SettingsStore defines key/value settings persistence for console-editable
// relay configuration.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Store combines every persistence concern of the console.
type Store interface {
	KeyStore
	EndpointStore
	DeliveryStore
	BanStore
	SettingsStore
	AdminStore

	Close() error
}
