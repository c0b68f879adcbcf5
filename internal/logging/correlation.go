package logging

import "context"

type correlationKey struct{}

// WithCorrelationID attaches a per-request correlation id to the context.
// The id is generated at the protocol boundary and travels with the request
// through every component; it is never stored in ambient state.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the request's correlation id, or "" when the
// context carries none (direct library use, self-test).
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
