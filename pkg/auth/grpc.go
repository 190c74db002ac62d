package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/identity"
)

// grpcUserAgentKey is the metadata key gRPC clients use for their
// user-agent string.
const grpcUserAgentKey = "user-agent"

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates every request through the identity engine.
//
// The interceptor extracts the bearer token from "authorization" metadata,
// reads the tenant hint from the engine's configured tenant header (as a
// lowercased metadata key), authenticates, and stores the identity in the
// handler's context. Authentication failures map to Unauthenticated and
// tenant violations to PermissionDenied.
func UnaryServerInterceptor(engine *identity.Engine, serviceName string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, engine, serviceName)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor
// performing the same authentication as [UnaryServerInterceptor], wrapping
// the stream so handlers see the enriched context.
func StreamServerInterceptor(engine *identity.Engine, serviceName string) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), engine, serviceName)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// propagates identity from the context to outgoing metadata. Requests
// without an identity proceed unmodified.
func UnaryClientInterceptor(serviceName string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx = propagateIdentityToGRPC(ctx, serviceName)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// performs the same propagation as [UnaryClientInterceptor].
func StreamClientInterceptor(serviceName string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx = propagateIdentityToGRPC(ctx, serviceName)
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// authenticateGRPC runs the engine on incoming metadata and enriches the
// context with the resulting identity.
func authenticateGRPC(ctx context.Context, engine *identity.Engine, serviceName string) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}

	tokens := md.Get(HeaderAuthorization)
	if len(tokens) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	token := ExtractBearerToken(tokens[0])
	if token == "" {
		return ctx, status.Error(codes.Unauthenticated, "invalid authorization format")
	}

	enrichment := identity.EnrichmentContext{
		RequestID: firstValue(md, HeaderRequestID),
		ClientIP:  peerAddr(ctx),
		UserAgent: firstValue(md, grpcUserAgentKey),
	}
	tenantHint := firstValue(md, strings.ToLower(engine.Enforcer().HeaderName()))

	id, err := engine.Authenticate(ctx, token, tenantHint, enrichment)
	if err != nil {
		if sserr.IsTenantViolation(err) {
			slog.WarnContext(ctx, "auth: tenant boundary violation",
				"error", err,
				"service", serviceName,
				"client_ip", enrichment.ClientIP,
			)
			return ctx, status.Error(codes.PermissionDenied, "tenant access denied")
		}
		return ctx, status.Error(codes.Unauthenticated, "token validation failed")
	}

	ctx = ContextWithIdentity(ctx, id)
	if caller := firstValue(md, HeaderCallerService); caller != "" {
		ctx = ContextWithCallerService(ctx, caller)
	}
	return ctx, nil
}

// propagateIdentityToGRPC adds identity information from the context to
// outgoing gRPC metadata for downstream services.
func propagateIdentityToGRPC(ctx context.Context, serviceName string) context.Context {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ctx
	}

	headers, err := identityToHeaders(id, serviceName)
	if err != nil {
		// The downstream service authenticates the bearer token itself,
		// so a propagation failure must not block the call.
		slog.WarnContext(ctx, "auth: failed to serialize identity for gRPC propagation",
			"error", err,
			"service", serviceName,
		)
		return ctx
	}

	pairs := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		pairs = append(pairs, strings.ToLower(k), v)
	}
	md := metadata.Pairs(pairs...)

	existingMD, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = metadata.Join(existingMD, md)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

// wrappedServerStream overrides Context so handlers see the identity added
// by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context containing identity information.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
