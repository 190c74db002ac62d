package identity

import (
	"time"

	"github.com/ironbucket/ironbucket-core/pkg/tenant"
)

// EngineConfig is the flat, loader-friendly configuration surface for the
// identity engine. It maps one to one onto ValidatorConfig, tenant.Config
// and the cache size, and carries env/yaml tags for pkg/config.
type EngineConfig struct {
	// IssuerWhitelist restricts acceptable token issuers. Empty accepts
	// any issuer.
	IssuerWhitelist []string `yaml:"issuer_whitelist" env:"IRONBUCKET_AUTH_ISSUER_WHITELIST"`

	// ExpectedAudience is the audience set this service answers to.
	// Empty disables the audience check.
	ExpectedAudience []string `yaml:"expected_audience" env:"IRONBUCKET_AUTH_EXPECTED_AUDIENCE"`

	// ClockSkewSeconds is the tolerance for exp and iat comparisons.
	ClockSkewSeconds int `yaml:"clock_skew_seconds" env:"IRONBUCKET_AUTH_CLOCK_SKEW_SECONDS" envDefault:"30"`

	// RequiredClaims overrides the default required-claim set
	// (sub, iss, aud, iat, exp).
	RequiredClaims []string `yaml:"required_claims" env:"IRONBUCKET_AUTH_REQUIRED_CLAIMS"`

	// MultiTenantMode enables tenant isolation. When false every request
	// resolves to SingleTenantValue.
	MultiTenantMode bool `yaml:"multi_tenant_mode" env:"IRONBUCKET_TENANT_ENABLED" envDefault:"true"`

	// SingleTenantValue is the tenant used when MultiTenantMode is off.
	SingleTenantValue string `yaml:"single_tenant_value" env:"IRONBUCKET_TENANT_SINGLE_VALUE" envDefault:"default"`

	// DefaultTenant is the fallback tenant in multi-tenant mode.
	DefaultTenant string `yaml:"default_tenant" env:"IRONBUCKET_TENANT_DEFAULT" envDefault:"default"`

	// TenantHeaderName is the HTTP header carrying the request tenant.
	TenantHeaderName string `yaml:"tenant_header_name" env:"IRONBUCKET_TENANT_HEADER" envDefault:"X-Tenant-ID"`

	// ValidateHeaderMatch rejects requests whose header tenant disagrees
	// with the token-claim tenant.
	ValidateHeaderMatch bool `yaml:"validate_header_match" env:"IRONBUCKET_TENANT_VALIDATE_HEADER_MATCH" envDefault:"false"`

	// AllowedTenantPattern is the regular expression a tenant identifier
	// must match. Empty means tenant.DefaultAllowedTenantPattern.
	AllowedTenantPattern string `yaml:"allowed_tenant_pattern" env:"IRONBUCKET_TENANT_ALLOWED_PATTERN" envDefault:"^[a-zA-Z0-9_-]+$"`

	// MaxCacheEntriesPerTenant bounds each tenant's identity-cache shard.
	MaxCacheEntriesPerTenant int `yaml:"max_cache_entries_per_tenant" env:"IRONBUCKET_AUTH_CACHE_MAX_PER_TENANT" envDefault:"100"`
}

// DefaultEngineConfig returns the configuration the engine runs with when
// nothing is overridden.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ClockSkewSeconds:         int(DefaultClockSkew / time.Second),
		MultiTenantMode:          true,
		SingleTenantValue:        tenant.DefaultTenant,
		DefaultTenant:            tenant.DefaultTenant,
		TenantHeaderName:         tenant.DefaultHeaderName,
		AllowedTenantPattern:     tenant.DefaultAllowedTenantPattern,
		MaxCacheEntriesPerTenant: DefaultMaxEntriesPerTenant,
	}
}

// validatorConfig projects the engine surface onto the validator's.
func (c EngineConfig) validatorConfig() ValidatorConfig {
	return ValidatorConfig{
		IssuerWhitelist:  c.IssuerWhitelist,
		ExpectedAudience: c.ExpectedAudience,
		ClockSkew:        time.Duration(c.ClockSkewSeconds) * time.Second,
		RequiredClaims:   c.RequiredClaims,
	}
}

// tenantConfig projects the engine surface onto the enforcer's.
func (c EngineConfig) tenantConfig() tenant.Config {
	return tenant.Config{
		Enabled:              c.MultiTenantMode,
		SingleTenantValue:    c.SingleTenantValue,
		DefaultTenant:        c.DefaultTenant,
		ValidateHeaderMatch:  c.ValidateHeaderMatch,
		HeaderName:           c.TenantHeaderName,
		AllowedTenantPattern: c.AllowedTenantPattern,
	}
}
