// Package relay maintains the console's persistent channel to the hookline
// relay server.
//
// # Overview
//
// The relay server pushes webhook and log traffic to the console over a
// JSON-over-WebSocket channel. This package keeps that channel alive across
// network interruptions without either callers or the transport layer
// managing retry logic by hand.
//
// # Manager
//
// Manager is the only surface external code touches:
//
//	mgr := relay.NewManager(relay.ManagerParams{Config: cfg.Relay.ManagerConfig()})
//	mgr.Connect()
//
// Key operations:
//
//   - Connect / Disconnect / Reconnect: imperative lifecycle control
//   - Send(env): write an envelope when connected
//   - Subscribe / Unsubscribe: observer registration
//   - CurrentStatus / LastMessage: synchronous reads
//
// # Lifecycle
//
// Status moves through Idle → Connecting → Connected, falling to
// Disconnected on any transport close. Unplanned closes consult the
// fixed-interval retry policy; once the attempt budget is exhausted the
// manager settles at Errored until a caller intervenes. A manual Disconnect
// suppresses retries entirely.
//
// Every transport attempt is tagged with a generation number. Events from an
// abandoned attempt, including a retry timer caught mid-flight by
// cancellation, re-check the generation and are dropped, so a disconnect
// can never race a stale reconnect.
//
// # Wire format
//
// Each frame is a JSON object with a "type" discriminator (ping, pong,
// connected, webhook, log, ...) and a type-specific payload. Malformed
// inbound frames are logged and dropped without disturbing the connection.
package relay
