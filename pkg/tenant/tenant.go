// Package tenant enforces tenant isolation across the IronBucket platform.
//
// Every request is resolved to exactly one tenant identifier before it may
// touch storage. The Enforcer owns that resolution and the subsequent
// boundary checks: identifier format, request/claim agreement, and
// resource-level scoping. All violations are reported as TENANT_xxx errors
// so they can be routed to audit logging.
package tenant

import (
	"regexp"
	"strings"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
)

const (
	// DefaultTenant is used in multi-tenant mode when neither the request
	// nor the token names a tenant and no fallback is configured.
	DefaultTenant = "default"

	// DefaultPathPrefix is prepended to tenant identifiers when building
	// scoped storage paths and bucket names.
	DefaultPathPrefix = "tenant-"

	// DefaultHeaderName is the HTTP header a request uses to name its
	// tenant.
	DefaultHeaderName = "X-Tenant-ID"

	// DefaultClaimName is the token claim a tenant identifier is read from.
	DefaultClaimName = "tenant"

	// MaxIdentifierLength caps tenant identifier length. Storage backends
	// embed the identifier in bucket names and object keys, so it has to
	// stay well under their key limits.
	MaxIdentifierLength = 255

	// DefaultAllowedTenantPattern accepts ASCII letters, digits, hyphens,
	// and underscores. Anything else (path separators, dots, spaces,
	// unicode) is rejected so a tenant identifier can never escape its
	// storage prefix.
	DefaultAllowedTenantPattern = `^[a-zA-Z0-9_-]+$`
)

// Config controls how the Enforcer resolves and scopes tenants.
type Config struct {
	// Enabled turns multi-tenancy on. When false, every request resolves
	// to SingleTenantValue and request/claim tenants are ignored.
	Enabled bool `yaml:"enabled" env:"IRONBUCKET_TENANT_ENABLED" envDefault:"true"`

	// SingleTenantValue is the tenant all requests resolve to when
	// multi-tenancy is disabled.
	SingleTenantValue string `yaml:"single_tenant_value" env:"IRONBUCKET_TENANT_SINGLE_VALUE" envDefault:"default"`

	// DefaultTenant is the fallback when neither the request nor the token
	// names a tenant. Empty means use the package default.
	DefaultTenant string `yaml:"default_tenant" env:"IRONBUCKET_TENANT_DEFAULT" envDefault:"default"`

	// ValidateHeaderMatch requires the request-supplied tenant to agree
	// with the token-claim tenant when both are present.
	ValidateHeaderMatch bool `yaml:"validate_header_match" env:"IRONBUCKET_TENANT_VALIDATE_HEADER_MATCH" envDefault:"false"`

	// PathPrefix is prepended to the tenant identifier in scoped paths and
	// bucket names. Empty means use the package default.
	PathPrefix string `yaml:"path_prefix" env:"IRONBUCKET_TENANT_PATH_PREFIX" envDefault:"tenant-"`

	// HeaderName is the HTTP header carrying the request tenant. Empty
	// means use the package default.
	HeaderName string `yaml:"header_name" env:"IRONBUCKET_TENANT_HEADER" envDefault:"X-Tenant-ID"`

	// ClaimName is the token claim carrying the tenant identifier. Empty
	// means use the package default.
	ClaimName string `yaml:"claim_name" env:"IRONBUCKET_TENANT_CLAIM" envDefault:"tenant"`

	// AllowedTenantPattern is the regular expression a tenant identifier
	// must match. Empty means use DefaultAllowedTenantPattern. A pattern
	// looser than the default can break storage-prefix isolation, so
	// widen it only for identifiers the backends are known to accept.
	AllowedTenantPattern string `yaml:"allowed_tenant_pattern" env:"IRONBUCKET_TENANT_ALLOWED_PATTERN" envDefault:"^[a-zA-Z0-9_-]+$"`
}

// Enforcer resolves requests to tenants and guards tenant boundaries.
// An Enforcer is immutable after construction and safe for concurrent use.
type Enforcer struct {
	enabled             bool
	singleTenantValue   string
	defaultTenant       string
	validateHeaderMatch bool
	pathPrefix          string
	headerName          string
	claimName           string
	identifierPattern   *regexp.Regexp
}

// NewEnforcer creates an Enforcer from the given configuration, applying
// package defaults for any empty optional fields.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	if cfg.AllowedTenantPattern == "" {
		cfg.AllowedTenantPattern = DefaultAllowedTenantPattern
	}
	pattern, err := regexp.Compile(cfg.AllowedTenantPattern)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"allowed tenant pattern %q is not a valid regular expression", cfg.AllowedTenantPattern)
	}

	if cfg.Enabled {
		if cfg.DefaultTenant == "" {
			cfg.DefaultTenant = DefaultTenant
		}
		if !pattern.MatchString(cfg.DefaultTenant) {
			return nil, sserr.Newf(sserr.CodeInternalConfiguration,
				"default tenant %q has invalid format", cfg.DefaultTenant)
		}
	} else {
		if cfg.SingleTenantValue == "" {
			cfg.SingleTenantValue = DefaultTenant
		}
		if !pattern.MatchString(cfg.SingleTenantValue) {
			return nil, sserr.Newf(sserr.CodeInternalConfiguration,
				"single tenant value %q has invalid format", cfg.SingleTenantValue)
		}
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultPathPrefix
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.ClaimName == "" {
		cfg.ClaimName = DefaultClaimName
	}

	return &Enforcer{
		enabled:             cfg.Enabled,
		singleTenantValue:   cfg.SingleTenantValue,
		defaultTenant:       cfg.DefaultTenant,
		validateHeaderMatch: cfg.ValidateHeaderMatch,
		pathPrefix:          cfg.PathPrefix,
		headerName:          cfg.HeaderName,
		claimName:           cfg.ClaimName,
		identifierPattern:   pattern,
	}, nil
}

// Enabled reports whether multi-tenancy is active.
func (e *Enforcer) Enabled() bool {
	return e.enabled
}

// HeaderName returns the HTTP header the Enforcer reads the request tenant
// from.
func (e *Enforcer) HeaderName() string {
	return e.headerName
}

// ClaimName returns the token claim the Enforcer reads the tenant from.
func (e *Enforcer) ClaimName() string {
	return e.claimName
}

// ValidIdentifier reports whether s is a well-formed tenant identifier:
// non-empty, at most MaxIdentifierLength characters, and matching the
// configured allowed pattern.
func (e *Enforcer) ValidIdentifier(s string) bool {
	if s == "" || len(s) > MaxIdentifierLength {
		return false
	}
	return e.identifierPattern.MatchString(s)
}

// Resolve determines the effective tenant for a request.
//
// In single-tenant mode the configured value is returned unconditionally;
// request and claim tenants are ignored, not rejected, so clients built for
// multi-tenant deployments keep working against single-tenant ones.
//
// In multi-tenant mode precedence is: request tenant, then claim tenant,
// then the configured default. A present-but-invalid identifier is an
// error, never a silent fallback. When header match validation is on and
// both sources are present, they must agree.
func (e *Enforcer) Resolve(requestTenant, claimTenant string) (string, error) {
	if !e.enabled {
		return e.singleTenantValue, nil
	}

	if requestTenant != "" {
		if !e.ValidIdentifier(requestTenant) {
			return "", sserr.New(sserr.CodeTenantInvalidFormat,
				"request tenant identifier has invalid format").
				WithDetail("tenant", requestTenant)
		}
		if e.validateHeaderMatch && claimTenant != "" && requestTenant != claimTenant {
			return "", sserr.New(sserr.CodeTenantMismatch,
				"request tenant does not match token tenant").
				WithDetails(map[string]any{
					"request_tenant": requestTenant,
					"token_tenant":   claimTenant,
				})
		}
		return requestTenant, nil
	}

	if claimTenant != "" {
		if !e.ValidIdentifier(claimTenant) {
			return "", sserr.New(sserr.CodeTenantInvalidFormat,
				"token tenant identifier has invalid format").
				WithDetail("tenant", claimTenant)
		}
		return claimTenant, nil
	}

	return e.defaultTenant, nil
}

// ScopedPath builds the storage path for a resource owned by tenant:
// "<prefix><tenant>/<resourcePath>". The tenant identifier is validated
// and any leading slashes on resourcePath are stripped so the result
// cannot escape the tenant's prefix.
func (e *Enforcer) ScopedPath(tenant, resourcePath string) (string, error) {
	if !e.ValidIdentifier(tenant) {
		return "", sserr.New(sserr.CodeTenantInvalidFormat,
			"tenant identifier has invalid format").
			WithDetail("tenant", tenant)
	}
	resourcePath = strings.TrimLeft(resourcePath, "/")
	return e.pathPrefix + tenant + "/" + resourcePath, nil
}

// ScopedBucket returns the bucket name owned by tenant:
// "<prefix><tenant>". The tenant identifier is validated.
func (e *Enforcer) ScopedBucket(tenant string) (string, error) {
	if !e.ValidIdentifier(tenant) {
		return "", sserr.New(sserr.CodeTenantInvalidFormat,
			"tenant identifier has invalid format").
			WithDetail("tenant", tenant)
	}
	return e.pathPrefix + tenant, nil
}

// CanAccessBucket reports whether tenant may use the given bucket. A
// tenant owns the bucket named exactly after it and the bucket carrying
// its scoped prefix. In single-tenant mode all buckets are accessible.
func (e *Enforcer) CanAccessBucket(tenant, bucket string) bool {
	if !e.enabled {
		return true
	}
	if tenant == "" || bucket == "" {
		return false
	}
	return bucket == tenant || bucket == e.pathPrefix+tenant
}

// CanAccessResource reports whether tenant may touch a resource that lives
// at the given scoped path. The path must start with the tenant's own
// scoped prefix. In single-tenant mode all paths are accessible.
func (e *Enforcer) CanAccessResource(tenant, scopedPath string) bool {
	if !e.enabled {
		return true
	}
	if tenant == "" {
		return false
	}
	prefix := e.pathPrefix + tenant
	return scopedPath == prefix || strings.HasPrefix(scopedPath, prefix+"/")
}

// RequireAccess returns a TENANT_003 error when tenant may not touch the
// resource at scopedPath, and nil otherwise.
func (e *Enforcer) RequireAccess(tenant, scopedPath string) error {
	if e.CanAccessResource(tenant, scopedPath) {
		return nil
	}
	return sserr.New(sserr.CodeTenantAccessDenied,
		"tenant is not permitted to access this resource").
		WithDetails(map[string]any{
			"tenant": tenant,
			"path":   scopedPath,
		})
}

// FilterResources returns the subset of scopedPaths the tenant may access,
// preserving input order. The input slice is not modified.
func (e *Enforcer) FilterResources(tenant string, scopedPaths []string) []string {
	if !e.enabled {
		out := make([]string, len(scopedPaths))
		copy(out, scopedPaths)
		return out
	}
	out := make([]string, 0, len(scopedPaths))
	for _, p := range scopedPaths {
		if e.CanAccessResource(tenant, p) {
			out = append(out, p)
		}
	}
	return out
}
