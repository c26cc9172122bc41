// Package logging provides structured logging for smartproxy on top of
// log/slog, with automatic redaction of IPMI credentials.
//
// The backend's IPMI password must never reach the log stream. The
// Redactor scrubs it three ways: by field name (any key containing
// "password", "secret", or "token"), by argv pattern (the "-P value"
// token of a logged ipmitool command line), and by literal value when
// the logger is constructed with the configured password.
package logging
