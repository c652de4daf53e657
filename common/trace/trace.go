// Package trace provides request-ID generation and context propagation so
// log lines emitted across the turn pipeline can be correlated back to the
// webhook delivery that triggered them.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// requestKey is the unexported context key holding the request ID.
type requestKey struct{}

// NewID returns a fresh request ID.
func NewID() string {
	return "r_" + uuid.NewString()
}

// WithID returns a child context carrying the given request ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// FromContext extracts the request ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestKey{}).(string); ok {
		return v
	}
	return ""
}
