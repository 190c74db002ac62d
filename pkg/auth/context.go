// Package auth glues the identity engine to HTTP and gRPC transports: it
// extracts bearer tokens and request metadata, runs Engine.Authenticate,
// stores the resulting NormalizedIdentity in the request context, and
// propagates identity to downstream services as headers or metadata.
//
// Propagated identity is advisory only. Receiving services re-validate the
// bearer token through their own engine; the serialized identity exists for
// audit and logging on hops that cannot validate, never as a credential.
package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/ironbucket/ironbucket-core/pkg/identity"
)

// contextKey is an unexported type used for context keys in this package.
// Using a distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	// identityKey stores the authenticated NormalizedIdentity.
	identityKey contextKey = iota

	// callerServiceKey stores the name of the calling service.
	callerServiceKey
)

// ContextWithIdentity returns a new context with the given identity
// attached. The identity can later be retrieved with [IdentityFromContext].
//
// This is typically called by gRPC server interceptors and HTTP middleware
// after Engine.Authenticate succeeds.
func ContextWithIdentity(ctx context.Context, id *identity.NormalizedIdentity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity from the context.
// Returns the identity and true if present, or nil and false if no identity
// has been set. This function never returns a non-nil identity with false.
func IdentityFromContext(ctx context.Context) (*identity.NormalizedIdentity, bool) {
	id, ok := ctx.Value(identityKey).(*identity.NormalizedIdentity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// MustIdentityFromContext retrieves the identity from the context, panicking
// if none is present. Use only in code paths that run strictly after the
// authentication middleware.
func MustIdentityFromContext(ctx context.Context) *identity.NormalizedIdentity {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; ensure authentication middleware is configured")
	}
	return id
}

// ContextWithCallerService returns a new context with the calling service
// name attached. This identifies which service forwarded the request.
func ContextWithCallerService(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, callerServiceKey, serviceName)
}

// CallerServiceFromContext retrieves the calling service name from the
// context. Returns the name and true if present, or an empty string and
// false for a direct client call.
func CallerServiceFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(callerServiceKey).(string)
	return name, ok
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from the context.
// Returns the trace ID as a hex string and true if a valid trace is active.
// This lets audit records link identity decisions to distributed traces.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}

// SpanIDFromContext extracts the OpenTelemetry span ID from the context.
// Returns the span ID as a hex string and true if a valid span is active.
func SpanIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.SpanID().String(), true
}
