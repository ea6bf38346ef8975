// ABOUTME: Connection status enum for the relay channel lifecycle.
// ABOUTME: Exactly one status holds at any instant; it drives UI and retry policy.

package relay

// Status describes the lifecycle state of the relay channel.
type Status int

const (
	// StatusIdle means the manager has never attempted a connection.
	StatusIdle Status = iota
	// StatusConnecting means a transport dial is in flight.
	StatusConnecting
	// StatusConnected means the channel is open and Send is accepted.
	StatusConnected
	// StatusDisconnected means the transport closed; a retry may be pending.
	StatusDisconnected
	// StatusErrored means reconnect attempts are exhausted. Only an explicit
	// Connect or Reconnect call resumes activity.
	StatusErrored
)

var statusNames = [...]string{
	"idle",
	"connecting",
	"connected",
	"disconnected",
	"errored",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}
