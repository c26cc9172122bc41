// Package probe answers one question: does the backend accept TCP
// connections on a given port right now? A probe opens a connection
// with a short timeout, sends nothing, and closes immediately.
package probe
