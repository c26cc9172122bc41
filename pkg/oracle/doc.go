// Package oracle derives a single observed-backend-state signal from
// two independent observations: the IPMI chassis power state and TCP
// reachability of the backend ports.
//
// The oracle is an observer, never an authority. It posts signals to a
// sink (the lifecycle state machine's event channel) and mutates
// nothing itself, which keeps the state machine testable by feeding it
// synthetic signals.
package oracle
