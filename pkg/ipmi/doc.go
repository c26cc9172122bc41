// Package ipmi controls backend power through an external IPMI tool.
//
// The Effector interface abstracts power control so the rest of the
// system never shells out directly. Three implementations exist: Tool
// spawns the configured ipmitool binary, Simulator is an in-memory
// fake for unit tests, and StateFile drives the JSON state file
// protocol used by mock power tools, watching it with fsnotify so
// externally made power flips are observed without polling.
//
// At most one external power command runs at any time. Tool enforces
// this with an internal mutex.
package ipmi
