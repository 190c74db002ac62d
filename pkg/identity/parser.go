package identity

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"

	"github.com/ironbucket/ironbucket-core/pkg/claims"
)

// maxTokenSize caps raw token length before any decoding happens.
// Legitimate tokens stay well under this; anything larger is rejected as
// malformed instead of being decoded.
const maxTokenSize = 8192

// TokenParts is the result of structurally decoding a compact JWS token.
// Nothing in it is trusted: the parser makes no signature, temporal, or
// claim decisions.
type TokenParts struct {
	// Header is the decoded JOSE header.
	Header map[string]any

	// Claims is the decoded payload.
	Claims claims.Claims

	// Alg and Kid are pulled from the header for convenience; either may
	// be empty.
	Alg string
	Kid string

	// SigningString is "header.payload" exactly as it appeared on the
	// wire, the input to signature verification.
	SigningString string

	// Signature is the decoded third segment.
	Signature []byte

	// Raw is the original token string.
	Raw string
}

// ParseToken splits and decodes a compact-serialization token without
// verifying anything. Every structural defect maps to CodeTokenMalformed
// with a message naming the defect; the raw token never appears in errors.
func ParseToken(raw string) (*TokenParts, error) {
	if raw == "" {
		return nil, sserr.New(sserr.CodeTokenMalformed, "token is empty")
	}
	if len(raw) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeTokenMalformed, "token exceeds maximum size of %d bytes", maxTokenSize)
	}

	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, sserr.Newf(sserr.CodeTokenMalformed, "token must have 3 segments, got %d", len(segments))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenMalformed, "token header is not valid base64url")
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenMalformed, "token payload is not valid base64url")
	}
	signature, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenMalformed, "token signature is not valid base64url")
	}

	var header map[string]any
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenMalformed, "token header is not a JSON object")
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeTokenMalformed, "token payload is not a JSON object")
	}

	parts := &TokenParts{
		Header:        header,
		Claims:        claims.Claims(payload),
		SigningString: segments[0] + "." + segments[1],
		Signature:     signature,
		Raw:           raw,
	}
	if alg, ok := header["alg"].(string); ok {
		parts.Alg = alg
	}
	if kid, ok := header["kid"].(string); ok {
		parts.Kid = kid
	}
	return parts, nil
}
