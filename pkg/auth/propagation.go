package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ironbucket/ironbucket-core/pkg/identity"
)

// Header and metadata key constants for identity propagation. The same keys
// are used for HTTP headers and gRPC metadata.
//
// Values carrying structured data are base64url-encoded JSON so they
// transport safely. Encoding is for transport, not confidentiality.
const (
	// HeaderAuthorization is the standard authorization header carrying
	// the bearer token, the only value that grants anything.
	HeaderAuthorization = "authorization"

	// HeaderRequestID carries the request correlation id.
	HeaderRequestID = "x-request-id"

	// HeaderIdentity carries a serialized NormalizedIdentity for
	// downstream audit and logging. Receivers must not treat it as a
	// credential; the bearer token is re-validated on every hop.
	HeaderIdentity = "x-ironbucket-identity"

	// HeaderCallerService carries the name of the service that forwarded
	// the request, identifying the immediate upstream hop.
	HeaderCallerService = "x-caller-service"
)

// MaxHeaderValueSize is the maximum allowed size in bytes for a single
// serialized header value. 8 KB is a conservative limit that fits the
// default header budgets of HTTP/1.1 and HTTP/2 servers.
const MaxHeaderValueSize = 8192

// bearerPrefix is the standard "Bearer " prefix for authorization tokens.
const bearerPrefix = "Bearer "

// ExtractBearerToken extracts the token from an authorization header value.
// It handles the "Bearer " prefix case-insensitively and returns an empty
// string when the header is empty or carries no bearer prefix.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	prefix := authHeader[:len(bearerPrefix)]
	if !strings.EqualFold(prefix, bearerPrefix) {
		return ""
	}
	return authHeader[len(bearerPrefix):]
}

// SerializeIdentity encodes an identity as base64url JSON for the
// [HeaderIdentity] header. Returns an empty string for a nil identity and
// an error when the encoded value exceeds [MaxHeaderValueSize].
//
// The raw claims are stripped before encoding: they can be arbitrarily
// large and the downstream service re-validates the token anyway.
func SerializeIdentity(id *identity.NormalizedIdentity) (string, error) {
	if id == nil {
		return "", nil
	}
	slim := id.Clone()
	slim.RawClaims = nil
	data, err := json.Marshal(slim)
	if err != nil {
		return "", fmt.Errorf("auth: failed to marshal identity: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(data)
	if len(encoded) > MaxHeaderValueSize {
		return "", fmt.Errorf("auth: serialized identity size %d exceeds maximum %d bytes", len(encoded), MaxHeaderValueSize)
	}
	return encoded, nil
}

// DeserializeIdentity decodes a [HeaderIdentity] value. Returns nil for an
// empty string. The result is untrusted metadata for audit and logging;
// authorization decisions always come from re-validating the bearer token.
func DeserializeIdentity(encoded string) (*identity.NormalizedIdentity, error) {
	if encoded == "" {
		return nil, nil
	}
	if len(encoded) > MaxHeaderValueSize {
		return nil, fmt.Errorf("auth: propagated identity size %d exceeds maximum %d bytes", len(encoded), MaxHeaderValueSize)
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode identity: %w", err)
	}
	var id identity.NormalizedIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("auth: failed to unmarshal identity: %w", err)
	}
	return &id, nil
}

// identityToHeaders builds the propagation header set for an identity.
// Returns nil for a nil identity.
func identityToHeaders(id *identity.NormalizedIdentity, callerService string) (map[string]string, error) {
	if id == nil {
		return nil, nil
	}
	encoded, err := SerializeIdentity(id)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		HeaderIdentity: encoded,
	}
	if id.RequestID != "" {
		headers[HeaderRequestID] = id.RequestID
	}
	if callerService != "" {
		headers[HeaderCallerService] = callerService
	}
	return headers, nil
}
