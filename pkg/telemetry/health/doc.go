// Package health serves the admin endpoint probes.
//
// Endpoints:
//
//   - /health: liveness, the process is running
//   - /ready: readiness, registered component checks all pass
//   - /state: lifecycle state, queue depth, and active splices
//   - /version: build information
//
// Readiness covers the proxy's own components. The managed backend
// being powered down is normal operation and never degrades
// readiness.
package health
