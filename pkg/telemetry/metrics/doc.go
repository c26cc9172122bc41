// Package metrics exposes Prometheus metrics for the proxy.
//
// The Collector owns a private registry and implements the lifecycle
// observer interface, so wiring it in is a single constructor
// argument. Metric names are namespaced under the configured prefix
// (default "smartproxy") and cover the backend state, the admission
// queue, power commands, and forwarded traffic.
package metrics
