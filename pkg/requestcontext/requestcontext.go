// Package requestcontext carries per-request metadata through context.Context.
// Only transport middleware writes these values; everything else reads them.
package requestcontext

import (
	"context"
	"time"
)

type contextKey int

const (
	keyRequestID contextKey = iota
	keyNow
	keySubdomain
)

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID returns the request correlation ID, or "" when outside a request.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithNow pins the request's notion of "now". Tests use this to make
// timestamp assertions deterministic.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, keyNow, now)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(keyNow).(time.Time); ok {
		return v
	}
	return time.Now().UTC()
}

// WithSubdomain stores the tenant subdomain extracted from the session token.
func WithSubdomain(ctx context.Context, subdomain string) context.Context {
	return context.WithValue(ctx, keySubdomain, subdomain)
}

// Subdomain returns the session's tenant subdomain, or "" when absent.
func Subdomain(ctx context.Context) string {
	if v, ok := ctx.Value(keySubdomain).(string); ok {
		return v
	}
	return ""
}
