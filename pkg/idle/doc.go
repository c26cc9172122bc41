// Package idle tracks backend activity and decides when the backend
// has been idle long enough to power down.
//
// The accountant keeps a single monotonic last-activity stamp updated
// on accept, on the first forwarded byte in each direction, and on
// connection close. Concurrent updates use an atomic max so the stamp
// never regresses. While armed, a re-armable one-shot timer fires an
// idle event once no activity has occurred for the configured
// inactivity timeout; the lifecycle state machine consumes the event
// and re-arms on the next READY.
package idle
