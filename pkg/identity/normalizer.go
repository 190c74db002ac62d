package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironbucket/ironbucket-core/pkg/claims"
	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/tenant"
)

// serviceAccountPrefix marks machine subjects issued by the platform.
const serviceAccountPrefix = "sa-"

// serviceAccountClaims are the explicit machine-principal flag names
// issuers set instead of (or alongside) the subject prefix. Both spellings
// circulate in minted tokens.
var serviceAccountClaims = []string{"isServiceAccount", "is_service_account"}

// unknownUsername terminates the username fallback chain when no claim
// supplies a name.
const unknownUsername = "unknown"

// Normalizer converts a validated claim set into a NormalizedIdentity.
// The same claims always normalize to the same identity fields, regardless
// of which service runs the normalization.
type Normalizer struct {
	enforcer *tenant.Enforcer

	// now is swappable for tests.
	now func() time.Time
}

// NewNormalizer builds a Normalizer that resolves tenants through the
// given enforcer.
func NewNormalizer(enforcer *tenant.Enforcer) (*Normalizer, error) {
	if enforcer == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "identity: tenant enforcer is required")
	}
	return &Normalizer{enforcer: enforcer, now: time.Now}, nil
}

// Normalize maps a validated claim set to the canonical identity.
// tenantHint is the caller-supplied tenant (typically the request header)
// and may be empty; enrichment is attached verbatim apart from the
// RequestID fallback. An identity missing any required field after mapping
// is rejected with CodeIncompleteIdentity listing every missing field.
func (n *Normalizer) Normalize(cl claims.Claims, tenantHint string, enrichment EnrichmentContext) (*NormalizedIdentity, error) {
	sub := cl.GetStringOr("sub", "")

	claimTenant := cl.GetStringOr(n.enforcer.ClaimName(), "")
	resolvedTenant, err := n.enforcer.Resolve(tenantHint, claimTenant)
	if err != nil {
		return nil, err
	}

	username := n.resolveUsername(cl, sub)
	realmRoles := extractRealmRoles(cl)
	resourceRoles := extractResourceRoles(cl)
	given := cl.GetStringOr("given_name", "")
	family := cl.GetStringOr("family_name", "")

	id := &NormalizedIdentity{
		UserID:           sub,
		Username:         username,
		Email:            cl.GetStringOr("email", ""),
		FirstName:        given,
		LastName:         family,
		FullName:         resolveFullName(given, family, username),
		TenantID:         resolvedTenant,
		Region:           cl.GetStringOr("region", ""),
		Groups:           cl.GetStringSlice("groups"),
		RealmRoles:       realmRoles,
		ResourceRoles:    resourceRoles,
		Roles:            flattenRoles(realmRoles, resourceRoles),
		IsServiceAccount: isServiceAccount(cl, sub),
		Issuer:           cl.GetStringOr("iss", ""),
		TokenID:          cl.GetStringOr("jti", ""),
		RequestID:        enrichment.RequestID,
		ClientIP:         enrichment.ClientIP,
		UserAgent:        enrichment.UserAgent,
		CreatedAt:        n.now(),
		RawClaims:        cl.Clone(),
	}
	if exp, ok := cl.GetTime("exp"); ok {
		id.ExpiresAt = exp
	}
	if iat, ok := cl.GetTime("iat"); ok {
		id.IssuedAt = iat
	}
	if id.RequestID == "" {
		id.RequestID = uuid.NewString()
	}

	if missing := id.Validate(); missing != nil {
		return nil, sserr.Newf(sserr.CodeIncompleteIdentity, "identity is missing required fields: %s", strings.Join(missing, ", ")).
			WithDetail("missing_fields", missing)
	}
	return id, nil
}

// resolveUsername walks the fallback chain: preferred_username, then
// email, then the subject, terminating in the literal "unknown" so a
// username is always present even when the subject itself is missing.
func (n *Normalizer) resolveUsername(cl claims.Claims, sub string) string {
	if u := cl.GetStringOr("preferred_username", ""); u != "" {
		return u
	}
	if u := cl.GetStringOr("email", ""); u != "" {
		return u
	}
	if sub != "" {
		return sub
	}
	return unknownUsername
}

func resolveFullName(given, family, username string) string {
	switch {
	case given != "" && family != "":
		return given + " " + family
	case given != "":
		return given
	case family != "":
		return family
	default:
		return username
	}
}

// extractRealmRoles reads realm_access.roles. Non-string entries are
// dropped silently.
func extractRealmRoles(cl claims.Claims) []string {
	realm, ok := cl.GetMap("realm_access")
	if !ok {
		return nil
	}
	return stringsOf(realm["roles"])
}

// extractResourceRoles reads resource_access.<resource>.roles for every
// resource, keeping only resources with at least one role.
func extractResourceRoles(cl claims.Claims) map[string][]string {
	resources, ok := cl.GetMap("resource_access")
	if !ok {
		return nil
	}
	out := make(map[string][]string)
	for resource, entry := range resources {
		access, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		roles := stringsOf(access["roles"])
		if len(roles) > 0 {
			out[resource] = roles
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// flattenRoles produces the combined view: realm roles first in their
// original order, then resource roles. Resource ordering follows map
// iteration and is not guaranteed.
func flattenRoles(realm []string, resource map[string][]string) []string {
	if len(realm) == 0 && len(resource) == 0 {
		return nil
	}
	out := make([]string, 0, len(realm))
	out = append(out, realm...)
	for _, roles := range resource {
		out = append(out, roles...)
	}
	return out
}

func isServiceAccount(cl claims.Claims, sub string) bool {
	if strings.HasPrefix(sub, serviceAccountPrefix) {
		return true
	}
	for _, name := range serviceAccountClaims {
		if flag, ok := cl.GetBool(name); ok && flag {
			return true
		}
	}
	return false
}

func stringsOf(v any) []string {
	entries, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
