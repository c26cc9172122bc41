// Package telemetry provides observability for smartproxy.
//
// # Components
//
//   - logging: structured logging with credential redaction
//   - metrics: Prometheus metrics collection
//   - health: admin endpoint probes (/health, /ready, /state, /version)
//
// # Credential Protection
//
// The logging redactor scrubs configured secrets (the IPMI password)
// and sensitive attribute keys from every log record, so a misplaced
// log call cannot leak credentials.
package telemetry
