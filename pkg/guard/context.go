package guard

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey int

const (
	claimKey contextKey = iota
)

// ContextWithClaim returns a new context carrying the validated claim.
func ContextWithClaim(ctx context.Context, claim Claim) context.Context {
	return context.WithValue(ctx, claimKey, claim)
}

// ClaimFromContext extracts the validated claim from the context. The
// boolean reports whether a claim was present.
func ClaimFromContext(ctx context.Context) (Claim, bool) {
	claim, ok := ctx.Value(claimKey).(Claim)
	return claim, ok
}

// MustClaimFromContext extracts the validated claim from the context and
// panics if none is present. Use only in handlers that always run behind
// the guard middleware.
func MustClaimFromContext(ctx context.Context) Claim {
	claim, ok := ClaimFromContext(ctx)
	if !ok {
		panic("guard: no claim in context; ensure the guard middleware is configured")
	}
	return claim
}

// TraceIDFromContext extracts the current trace ID from the context.
// Returns an empty string if no trace is active.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanIDFromContext extracts the current span ID from the context.
// Returns an empty string if no span is active.
func SpanIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}
