// Package server wires the proxy components together and supervises
// their lifetimes.
//
// The Supervisor owns every long-running part of the proxy: the TCP
// listener set, the lifecycle state machine, the power state oracle,
// the forwarder pool, the journal, and the admin HTTP endpoint. Start
// assembles them from a validated configuration, runs them, and blocks
// until the context is canceled or a component fails.
//
// # Basic Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sup := server.New(cfg, logger, server.BuildInfo{Version: version})
//	if err := sup.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Shutdown Ordering
//
// When the context is canceled the supervisor tears down in dependency
// order:
//
//  1. Listeners close, so no new connections arrive.
//  2. The warmup scheduler and oracle stop.
//  3. In-flight splices drain, bounded by the request timeout.
//  4. The state machine stops, failing any still-queued connections.
//  5. The admin endpoint and journal close.
//
// # Admin Endpoint
//
// When metrics are enabled the supervisor serves an admin endpoint on
// the configured listen address:
//
//   - GET /metrics - Prometheus exposition
//   - GET /health - liveness probe (always 200)
//   - GET /ready - readiness probe (503 when a component check fails)
//   - GET /state - live lifecycle state, queue depth, active splices
//   - GET /version - build information
//
// Readiness reflects the proxy itself, not the backend: a powered-down
// backend is a normal operating condition.
package server
