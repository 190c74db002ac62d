package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironbucket/ironbucket-core/pkg/keys"
	"github.com/ironbucket/ironbucket-core/pkg/revocation"
	"github.com/ironbucket/ironbucket-core/pkg/tenant"
)

// negativeOutcomeTTL bounds how long a memoized failure without a usable
// exp claim may be replayed.
const negativeOutcomeTTL = 5 * time.Minute

// Engine is the full authentication pipeline: structural parse, ordered
// validation, claim normalization and tenant resolution, with a per-tenant
// cache over everything after the parse. An Engine is stateless apart from
// the cache and safe for concurrent use.
type Engine struct {
	config     EngineConfig
	validator  *Validator
	normalizer *Normalizer
	enforcer   *tenant.Enforcer
	cache      *Cache
	cfgPrint   string
	tracer     trace.Tracer
}

// NewEngine wires the pipeline from configuration. provider supplies
// verification keys; checker may be nil to disable revocation checks.
func NewEngine(config EngineConfig, provider keys.Provider, checker revocation.Checker) (*Engine, error) {
	enforcer, err := tenant.NewEnforcer(config.tenantConfig())
	if err != nil {
		return nil, err
	}
	validator, err := NewValidator(config.validatorConfig(), provider, checker)
	if err != nil {
		return nil, err
	}
	normalizer, err := NewNormalizer(enforcer)
	if err != nil {
		return nil, err
	}
	return &Engine{
		config:     config,
		validator:  validator,
		normalizer: normalizer,
		enforcer:   enforcer,
		cache:      NewCache(config.MaxCacheEntriesPerTenant),
		cfgPrint:   configFingerprint(config),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Enforcer exposes the tenant enforcer so transports can read the header
// name and services can make access decisions against resolved tenants.
func (e *Engine) Enforcer() *tenant.Enforcer {
	return e.enforcer
}

// Authenticate runs the pipeline on a raw bearer token. tenantHint is the
// request-supplied tenant (usually the X-Tenant-ID header) and may be
// empty. The returned identity carries the enrichment verbatim; two calls
// with the same token agree on every other field. Errors are typed per
// pkg/errors, and neither the token nor key material ever appears in them.
func (e *Engine) Authenticate(ctx context.Context, rawToken, tenantHint string, enrichment EnrichmentContext) (*NormalizedIdentity, error) {
	ctx, span := e.tracer.Start(ctx, "identity.Authenticate")
	defer span.End()

	parts, err := ParseToken(rawToken)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	shardTenant := e.shardTenant(parts, tenantHint)
	key := Fingerprint(rawToken) + ":" + e.cfgPrint + ":" + tenantHint
	span.SetAttributes(attribute.String("identity.tenant", shardTenant))

	cached := true
	id, err := e.cache.Do(shardTenant, key, func() (*NormalizedIdentity, error, time.Time) {
		cached = false
		id, err := e.authenticateParsed(ctx, parts, tenantHint)
		return id, err, e.outcomeDeadline(parts, err)
	})
	span.SetAttributes(attribute.Bool("identity.cache_hit", cached))
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	id = e.applyEnrichment(id, enrichment)
	span.SetAttributes(
		attribute.String("identity.user_id", id.UserID),
		attribute.Bool("identity.service_account", id.IsServiceAccount),
	)
	return id, nil
}

// InvalidateTenant drops every cached identity for one tenant, forcing
// full re-validation of its tokens. Call after a revocation event or a
// tenant-wide permission change.
func (e *Engine) InvalidateTenant(tenant string) {
	e.cache.InvalidateTenant(tenant)
}

// authenticateParsed is the cached portion of the pipeline: validation
// plus normalization, without request enrichment.
func (e *Engine) authenticateParsed(ctx context.Context, parts *TokenParts, tenantHint string) (*NormalizedIdentity, error) {
	cl, err := e.validator.ValidateParsed(ctx, parts)
	if err != nil {
		return nil, err
	}
	return e.normalizer.Normalize(cl, tenantHint, EnrichmentContext{})
}

// applyEnrichment stamps per-request metadata onto a (possibly cached)
// identity. The input is already a private copy.
func (e *Engine) applyEnrichment(id *NormalizedIdentity, enrichment EnrichmentContext) *NormalizedIdentity {
	id.RequestID = enrichment.RequestID
	if id.RequestID == "" {
		id.RequestID = uuid.NewString()
	}
	id.ClientIP = enrichment.ClientIP
	id.UserAgent = enrichment.UserAgent
	return id
}

// shardTenant picks the cache shard for a token before validation has run.
// It mirrors Resolve's precedence but never errors; resolution failures
// surface from the normalizer with their proper codes.
func (e *Engine) shardTenant(parts *TokenParts, tenantHint string) string {
	if !e.enforcer.Enabled() {
		resolved, _ := e.enforcer.Resolve("", "")
		return resolved
	}
	if e.enforcer.ValidIdentifier(tenantHint) {
		return tenantHint
	}
	if claimTenant := parts.Claims.GetStringOr(e.enforcer.ClaimName(), ""); e.enforcer.ValidIdentifier(claimTenant) {
		return claimTenant
	}
	resolved, err := e.enforcer.Resolve("", "")
	if err != nil {
		return tenant.DefaultTenant
	}
	return resolved
}

// outcomeDeadline bounds a memoized outcome: token expiry plus skew when
// the token carries a usable exp, otherwise a short negative-outcome TTL
// for failures.
func (e *Engine) outcomeDeadline(parts *TokenParts, err error) time.Time {
	if exp, ok := parts.Claims.GetTime("exp"); ok {
		return exp.Add(e.validator.config.skew())
	}
	if err != nil {
		return time.Now().Add(negativeOutcomeTTL)
	}
	return time.Time{}
}

// configFingerprint digests the fields that influence validation outcomes
// so that a configuration change invalidates cached outcomes by key miss
// rather than by explicit flush.
func configFingerprint(c EngineConfig) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(c.IssuerWhitelist, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(c.ExpectedAudience, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(c.ClockSkewSeconds)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(c.RequiredClaims, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(c.MultiTenantMode)))
	h.Write([]byte{0})
	h.Write([]byte(c.SingleTenantValue))
	h.Write([]byte{0})
	h.Write([]byte(c.DefaultTenant))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(c.ValidateHeaderMatch)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
