package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// ContextKey is the type of request context keys set by this package.
type ContextKey string

const (
	// IdentityContextKey holds the authenticated caller's lease identity.
	IdentityContextKey ContextKey = "identity"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a trace ID.
	TraceIDLength = 16
)

// SetTraceID adds a fresh trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// GetIdentity returns the caller identity and whether a non-empty one was set.
func GetIdentity(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(string)
	return identity, ok && identity != ""
}

// generateTraceID returns 32 hex characters. A uuid stands in if the
// system random source fails.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if _, err := rand.Read(b); err != nil {
		id := uuid.New()
		return hex.EncodeToString(id[:])
	}
	return hex.EncodeToString(b)
}
