// Package journal records power transitions, admission outcomes, and
// IPMI commands in a SQLite database.
//
// The journal implements the lifecycle observer interface. Observer
// callbacks run on the state machine's writer goroutine, so they only
// post to a buffered channel; a dedicated writer goroutine performs
// the inserts. When the channel is full, records are dropped and
// counted rather than blocking the machine.
//
// Retention is enforced by a cron-scheduled pruner that deletes
// records older than the configured window.
package journal
