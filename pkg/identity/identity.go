// Package identity implements the IronBucket identity-normalization engine:
// structural token parsing, ordered signature and temporal validation, claim
// normalization into a canonical NormalizedIdentity, tenant resolution, and a
// per-tenant LRU cache over the expensive validation steps.
//
// The entry point for services is Engine.Authenticate, which takes a raw
// bearer token plus per-request enrichment and returns a fully populated
// identity or a typed error from pkg/errors. Every IronBucket service derives
// its view of "who is calling" from this package so that two services
// presented with the same token always agree on the answer.
package identity

import (
	"time"

	"github.com/ironbucket/ironbucket-core/pkg/claims"
)

// EnrichmentContext carries per-request metadata attached verbatim to the
// normalized identity. None of its fields participate in validation.
type EnrichmentContext struct {
	// RequestID correlates the identity with the request that produced it.
	// When empty, the normalizer generates one.
	RequestID string `json:"request_id,omitempty"`

	// ClientIP is the source address of the request as seen by the edge.
	ClientIP string `json:"client_ip,omitempty"`

	// UserAgent is the caller's User-Agent header, if any.
	UserAgent string `json:"user_agent,omitempty"`
}

// NormalizedIdentity is the canonical representation of an authenticated
// principal. It is produced once per validated token and treated as
// immutable: accessor methods return defensive copies of the slice and map
// fields so that a holder cannot corrupt a cached instance.
type NormalizedIdentity struct {
	// UserID is the stable subject identifier (the token's sub claim).
	UserID string `json:"user_id"`

	// Username is the human-readable login name, resolved through the
	// preferred_username / email / sub fallback chain.
	Username string `json:"username"`

	// Email is the principal's email address, if the token carried one.
	Email string `json:"email,omitempty"`

	// FirstName and LastName come from the given_name and family_name
	// claims.
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// FullName is the display name joined from FirstName and LastName,
	// falling back to Username.
	FullName string `json:"full_name,omitempty"`

	// TenantID is the resolved tenant this identity is scoped to.
	TenantID string `json:"tenant_id"`

	// Region is the deployment region the token was minted for, if any.
	Region string `json:"region,omitempty"`

	// Groups are the group memberships from the token's groups claim.
	Groups []string `json:"groups,omitempty"`

	// RealmRoles are the realm-level role names from the token.
	RealmRoles []string `json:"realm_roles,omitempty"`

	// ResourceRoles maps client/resource names to their role lists.
	// Only resources with at least one role appear.
	ResourceRoles map[string][]string `json:"resource_roles,omitempty"`

	// Roles is the flattened role view: realm roles first, then resource
	// roles. Convenient for services that do not care about role origin.
	Roles []string `json:"roles,omitempty"`

	// IsServiceAccount marks machine principals (subject prefixed "sa-"
	// or an explicit service-account claim).
	IsServiceAccount bool `json:"is_service_account"`

	// Issuer is the token's iss claim.
	Issuer string `json:"issuer,omitempty"`

	// ExpiresAt is the token's exp claim as wall-clock time.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// IssuedAt is the token's iat claim as wall-clock time.
	IssuedAt time.Time `json:"issued_at,omitempty"`

	// TokenID is the token's jti claim, used for revocation.
	TokenID string `json:"token_id,omitempty"`

	// RequestID, ClientIP and UserAgent come from the EnrichmentContext.
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// CreatedAt records when this identity was normalized.
	CreatedAt time.Time `json:"created_at"`

	// RawClaims is the full decoded token payload, kept for services that
	// need claims the normalizer does not surface.
	RawClaims claims.Claims `json:"raw_claims,omitempty"`
}

// Validate reports the required fields that are absent. A nil return means
// the identity satisfies the completeness invariant.
func (id *NormalizedIdentity) Validate() []string {
	var missing []string
	if id.UserID == "" {
		missing = append(missing, "user_id")
	}
	if id.Username == "" {
		missing = append(missing, "username")
	}
	if id.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if id.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if id.IssuedAt.IsZero() {
		missing = append(missing, "issued_at")
	}
	if id.ExpiresAt.IsZero() {
		missing = append(missing, "expires_at")
	}
	return missing
}

// RoleList returns a copy of the flattened roles.
func (id *NormalizedIdentity) RoleList() []string {
	if id.Roles == nil {
		return nil
	}
	out := make([]string, len(id.Roles))
	copy(out, id.Roles)
	return out
}

// HasRole reports whether the flattened role view contains name.
func (id *NormalizedIdentity) HasRole(name string) bool {
	for _, r := range id.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasRealmRole reports whether the identity carries the realm role name.
func (id *NormalizedIdentity) HasRealmRole(name string) bool {
	for _, r := range id.RealmRoles {
		if r == name {
			return true
		}
	}
	return false
}

// HasResourceRole reports whether the identity carries role name for the
// given resource.
func (id *NormalizedIdentity) HasResourceRole(resource, name string) bool {
	for _, r := range id.ResourceRoles[resource] {
		if r == name {
			return true
		}
	}
	return false
}

// Claims returns a copy of the raw token payload.
func (id *NormalizedIdentity) Claims() claims.Claims {
	return id.RawClaims.Clone()
}

// Clone returns a deep copy of the identity. Cached identities are cloned
// before being handed to callers.
func (id *NormalizedIdentity) Clone() *NormalizedIdentity {
	if id == nil {
		return nil
	}
	out := *id
	if id.RealmRoles != nil {
		out.RealmRoles = make([]string, len(id.RealmRoles))
		copy(out.RealmRoles, id.RealmRoles)
	}
	if id.Groups != nil {
		out.Groups = make([]string, len(id.Groups))
		copy(out.Groups, id.Groups)
	}
	if id.Roles != nil {
		out.Roles = make([]string, len(id.Roles))
		copy(out.Roles, id.Roles)
	}
	if id.ResourceRoles != nil {
		out.ResourceRoles = make(map[string][]string, len(id.ResourceRoles))
		for res, roles := range id.ResourceRoles {
			rs := make([]string, len(roles))
			copy(rs, roles)
			out.ResourceRoles[res] = rs
		}
	}
	out.RawClaims = id.RawClaims.Clone()
	return &out
}
