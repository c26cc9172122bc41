package logging

import "context"

type contextKey string

const (
	intentIDKey   contextKey = "intent_id"
	remoteAddrKey contextKey = "remote_addr"
	listenPortKey contextKey = "listen_port"
)

// WithIntentID returns a context carrying the connection intent ID.
func WithIntentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, intentIDKey, id)
}

// WithRemoteAddr returns a context carrying the client's remote address.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

// WithListenPort returns a context carrying the accepting listen port.
func WithListenPort(ctx context.Context, port uint16) context.Context {
	return context.WithValue(ctx, listenPortKey, port)
}

// IntentID extracts the connection intent ID from the context, if set.
func IntentID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(intentIDKey).(string)
	return id, ok
}

// extractContextFields returns the log fields carried by the context
// as alternating key/value pairs.
func extractContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var fields []any
	if id, ok := ctx.Value(intentIDKey).(string); ok && id != "" {
		fields = append(fields, "intent_id", id)
	}
	if addr, ok := ctx.Value(remoteAddrKey).(string); ok && addr != "" {
		fields = append(fields, "remote_addr", addr)
	}
	if port, ok := ctx.Value(listenPortKey).(uint16); ok && port != 0 {
		fields = append(fields, "listen_port", port)
	}
	return fields
}
