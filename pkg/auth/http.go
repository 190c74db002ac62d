package auth

import (
	"log/slog"
	"net"
	"net/http"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/identity"
)

// HTTPMiddleware returns an HTTP middleware that authenticates every
// request through the identity engine.
//
// The middleware:
//  1. Extracts the bearer token from the Authorization header
//  2. Reads the tenant hint from the engine's configured tenant header
//  3. Builds the enrichment context from X-Request-ID, the remote address
//     and the User-Agent header
//  4. Calls Engine.Authenticate and stores the identity in the context
//
// Failures map to status codes through the typed error's HTTPStatus:
// authentication failures answer 401, tenant violations 403. Response
// bodies stay generic; the typed detail is for logs, not for callers.
//
// The serviceName parameter identifies this service in audit logs.
func HTTPMiddleware(engine *identity.Engine, serviceName string) func(http.Handler) http.Handler {
	tenantHeader := engine.Enforcer().HeaderName()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			enrichment := identity.EnrichmentContext{
				RequestID: r.Header.Get(HeaderRequestID),
				ClientIP:  clientIP(r),
				UserAgent: r.UserAgent(),
			}

			id, err := engine.Authenticate(ctx, token, r.Header.Get(tenantHeader), enrichment)
			if err != nil {
				if sserr.IsTenantViolation(err) {
					// Cross-tenant attempts are audit events, not noise.
					slog.WarnContext(ctx, "auth: tenant boundary violation",
						"error", err,
						"service", serviceName,
						"client_ip", enrichment.ClientIP,
					)
				}
				http.Error(w, "authentication failed", sserr.FromError(err).HTTPStatus())
				return
			}

			ctx = ContextWithIdentity(ctx, id)
			if caller := r.Header.Get(HeaderCallerService); caller != "" {
				ctx = ContextWithCallerService(ctx, caller)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP strips the port from the remote address. RemoteAddr is the
// direct peer; forwarding proxies are deliberately not consulted here
// because their headers are unauthenticated.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PropagatingRoundTripper wraps an [http.RoundTripper] to attach identity
// context to outgoing requests. It reads the identity and caller service
// from the request context and adds them as headers for the downstream
// service's audit trail.
//
// Example:
//
//	client := &http.Client{
//	    Transport: auth.NewPropagatingRoundTripper("storage-api", http.DefaultTransport),
//	}
//	resp, err := client.Do(req.WithContext(ctx))
type PropagatingRoundTripper struct {
	serviceName string
	wrapped     http.RoundTripper
}

// NewPropagatingRoundTripper creates a PropagatingRoundTripper over the
// given transport. A nil transport selects [http.DefaultTransport].
func NewPropagatingRoundTripper(serviceName string, transport http.RoundTripper) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &PropagatingRoundTripper{
		serviceName: serviceName,
		wrapped:     transport,
	}
}

// RoundTrip executes the request with identity headers injected from the
// context. Without an identity in the context the request passes through
// unmodified. RoundTrip implements [http.RoundTripper].
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return t.wrapped.RoundTrip(r)
	}

	headers, err := identityToHeaders(id, t.serviceName)
	if err != nil {
		// Propagation failure must not block the outgoing request; the
		// downstream service authenticates the bearer token itself.
		slog.WarnContext(r.Context(), "auth: failed to serialize identity for HTTP propagation",
			"error", err,
			"service", t.serviceName,
		)
		return t.wrapped.RoundTrip(r)
	}

	// Clone the request to avoid mutating the original.
	clone := r.Clone(r.Context())
	for k, v := range headers {
		clone.Header.Set(k, v)
	}
	return t.wrapped.RoundTrip(clone)
}
