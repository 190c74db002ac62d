// Package keys supplies verification key material to the token validator.
//
// A Provider resolves the key identifier and algorithm found in a token
// header to the key needed to verify its signature. Providers exist for a
// single shared HMAC secret, a static set of named keys, and JWKS endpoints
// with TTL-based caching and rotation-aware refetching.
package keys

import (
	"context"
)

// ---------------------------------------------------------------------------
// Secret type — prevents accidental logging of sensitive values
// ---------------------------------------------------------------------------

// Secret is a string type that redacts its value in String(), GoString(), and
// MarshalText() to prevent accidental exposure in logs, JSON output, or
// fmt.Printf. The actual value is only accessible via the [Secret.Value]
// method, which should be called only where the raw value is truly needed
// (e.g., passing to a cryptographic function).
type Secret string

// secretRedacted is the placeholder text shown instead of the actual secret
// value when the secret is printed, formatted, or serialized.
const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder, preventing the secret from being
// printed via fmt.Println, log.Printf, or similar functions.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, preventing the secret from being
// printed via fmt.Printf("%#v", secret).
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string. This is the only way to access the
// underlying value and should be used only where the raw secret is required
// (e.g., passing to a cryptographic signing or verification function).
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder. This prevents the secret from leaking into JSON, YAML, or
// any other text-based serialization format.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// ---------------------------------------------------------------------------
// Provider interface
// ---------------------------------------------------------------------------

// Provider resolves a token's key identifier and signing algorithm to the
// key material needed to verify its signature. The returned value is a
// []byte for HMAC algorithms, an *rsa.PublicKey for RS algorithms, or an
// *ecdsa.PublicKey for ES algorithms.
//
// kid may be empty when the token header carries no key identifier.
// Implementations must be safe for concurrent use. A key that cannot be
// resolved is reported with code [sserr.CodeUnknownSigningKey].
type Provider interface {
	VerificationKey(ctx context.Context, kid, alg string) (any, error)
}
