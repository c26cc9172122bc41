// Package forward owns the data plane: the listener set that accepts
// client connections and the forwarder pool that splices them to the
// backend.
//
// Listeners never read from a client socket. An accepted connection
// becomes an intent and is handed to the lifecycle machine, which
// either releases it immediately or queues it for the next power
// cycle. The pool dials the backend, then runs one copy pump per
// direction with TCP half-close so that independent shutdown of each
// direction is preserved. Every first byte per direction and every
// connection close stamps the idle accountant.
package forward
