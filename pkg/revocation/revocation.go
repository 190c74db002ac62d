// Package revocation tracks revoked token identifiers (jti claims).
//
// Tokens are stateless, so a compromised or logged-out token stays
// cryptographically valid until it expires. The revocation list closes that
// gap: validators consult a [Checker] after signature verification and
// reject any token whose jti is on the list.
//
// Two backends are provided. [Memory] is a self-expiring in-process list
// for single-instance deployments and tests. [Redis] shares the list across
// instances with per-entry TTLs so Redis garbage-collects entries as the
// underlying tokens expire.
//
// Store failures are always surfaced to the caller. A revocation check
// that cannot be completed must fail the request, never silently admit
// the token.
package revocation

import (
	"context"
	"time"
)

// Checker reports whether a token identifier has been revoked.
//
// Implementations must be safe for concurrent use. An error return means
// the list could not be consulted; callers must treat that as a validation
// failure, not as "not revoked".
type Checker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Revoker adds token identifiers to the revocation list.
//
// expiresAt is the token's own expiry. Entries past that instant are
// meaningless (the token would be rejected as expired anyway) and backends
// use it to bound entry lifetime.
type Revoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

// List is a full revocation list supporting both checking and revoking.
type List interface {
	Checker
	Revoker
}

// NoopChecker is a Checker that never reports a token as revoked. Use it
// when revocation checking is disabled.
type NoopChecker struct{}

// IsRevoked always returns false.
func (NoopChecker) IsRevoked(context.Context, string) (bool, error) {
	return false, nil
}
