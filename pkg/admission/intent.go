package admission

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Intent is a client connection waiting for the backend. The Conn is
// owned by whoever currently holds the intent; it has not been read
// from beyond what the TCP stack buffered.
type Intent struct {
	// ID identifies the intent in logs and the journal.
	ID string

	// Conn is the accepted client socket.
	Conn net.Conn

	// ListenPort is the proxy port the client connected to.
	ListenPort uint16

	// BackendPort is the backend port this intent maps to.
	BackendPort uint16

	// EnqueuedAt is when the listener accepted the connection.
	EnqueuedAt time.Time

	// Deadline is EnqueuedAt plus the request timeout. An intent not
	// released by then is failed with a gateway timeout.
	Deadline time.Time

	// Requeued marks an intent that already failed one backend dial
	// and was put back. A second dial failure is surfaced, not
	// retried.
	Requeued bool
}

// NewIntent creates an intent for an accepted connection.
func NewIntent(conn net.Conn, listenPort, backendPort uint16, requestTimeout time.Duration) *Intent {
	now := time.Now()
	return &Intent{
		ID:          uuid.NewString(),
		Conn:        conn,
		ListenPort:  listenPort,
		BackendPort: backendPort,
		EnqueuedAt:  now,
		Deadline:    now.Add(requestTimeout),
	}
}

// Expired reports whether the intent's deadline has passed.
func (i *Intent) Expired(now time.Time) bool {
	return !i.Deadline.After(now)
}

// Remaining returns the time left before the deadline, clamped at
// zero.
func (i *Intent) Remaining(now time.Time) time.Duration {
	if i.Expired(now) {
		return 0
	}
	return i.Deadline.Sub(now)
}
