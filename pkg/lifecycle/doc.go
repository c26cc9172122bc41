// Package lifecycle owns the authoritative backend state.
//
// The state machine is single-writer: every event, whether it is an
// arriving connection intent, an oracle observation, an idle-timer
// expiry, a startup deadline, or a power-command completion, is posted
// to one channel and consumed by one goroutine. The channel is the
// linearization point; no locking protects the state field itself, and
// external readers load an atomic snapshot.
//
// The transition table lives in the machine's event handlers. Unknown
// or impossible transitions are logged and ignored, never panicked on.
package lifecycle
