// ABOUTME: Transport abstraction for a single connection attempt, plus the
// ABOUTME: production WebSocket implementation built on coder/websocket.

package relay

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

const dialTimeout = 10 * time.Second

// Transport is one disposable connection attempt's handle. The manager owns
// at most one live Transport at a time; each attempt gets a fresh one.
type Transport interface {
	// Read blocks until the next inbound frame or a transport failure.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one outbound frame.
	Write(ctx context.Context, data []byte) error
	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Dialer opens transports. Tests substitute a fake to count dials and to
// script open/close failures.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// WebSocketDialer dials the relay server over WebSocket.
type WebSocketDialer struct{}

func (WebSocketDialer) Dial(ctx context.Context, address string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	// Relay frames are small JSON objects; the default 32 KiB read limit is
	// too tight for webhook payloads.
	conn.SetReadLimit(1 << 20)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
