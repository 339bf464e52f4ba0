package utils

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDHeader carries the request id to the client and the backend.
const RequestIDHeader = "X-Request-Id"

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return "r--" + uuid.NewString()
}

// WithRequestID stores id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored on ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
