package identity

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironbucket/ironbucket-core/pkg/claims"
	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/keys"
	"github.com/ironbucket/ironbucket-core/pkg/revocation"
)

// tracerName is the OpenTelemetry instrumentation scope for identity spans.
const tracerName = "github.com/ironbucket/ironbucket-core/pkg/identity"

// DefaultClockSkew is the tolerance applied to exp and iat comparisons.
const DefaultClockSkew = 30 * time.Second

// DefaultRequiredClaims are the claims every token must carry unless the
// validator is configured otherwise.
var DefaultRequiredClaims = []string{"sub", "iss", "aud", "iat", "exp"}

// allowedAlgorithms is the closed set of signature algorithms the validator
// accepts. "none" is absent on purpose.
var allowedAlgorithms = map[string]bool{
	"HS256": true, "HS384": true, "HS512": true,
	"RS256": true, "RS384": true, "RS512": true,
	"ES256": true, "ES384": true, "ES512": true,
}

// ValidatorConfig controls the validation checks. The zero value is usable:
// any issuer, no audience requirement, default skew and required claims.
type ValidatorConfig struct {
	// IssuerWhitelist restricts acceptable iss values. Empty accepts any.
	IssuerWhitelist []string

	// ExpectedAudience is the set of audiences this service answers to.
	// Empty disables the audience check. A token passes when its aud
	// claim intersects this set.
	ExpectedAudience []string

	// ClockSkew is the tolerance for exp and iat. Defaults to
	// DefaultClockSkew when zero; negative disables tolerance.
	ClockSkew time.Duration

	// RequiredClaims must all be present in the payload. Defaults to
	// DefaultRequiredClaims when nil.
	RequiredClaims []string
}

func (c ValidatorConfig) skew() time.Duration {
	if c.ClockSkew == 0 {
		return DefaultClockSkew
	}
	if c.ClockSkew < 0 {
		return 0
	}
	return c.ClockSkew
}

func (c ValidatorConfig) required() []string {
	if c.RequiredClaims == nil {
		return DefaultRequiredClaims
	}
	return c.RequiredClaims
}

// Validator performs the ordered token checks: structure, signature,
// revocation, expiry, required claims, issuer, audience, issuance time.
// The first failing check wins and later checks never run, so error codes
// are deterministic for any given token and clock.
type Validator struct {
	config     ValidatorConfig
	keys       keys.Provider
	revocation revocation.Checker
	tracer     trace.Tracer

	// now is swappable for tests.
	now func() time.Time
}

// NewValidator builds a Validator over the given key provider. A nil
// revocation checker skips the revocation step.
func NewValidator(config ValidatorConfig, provider keys.Provider, checker revocation.Checker) (*Validator, error) {
	if provider == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "identity: key provider is required")
	}
	if checker == nil {
		checker = revocation.NoopChecker{}
	}
	return &Validator{
		config:     config,
		keys:       provider,
		revocation: checker,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}, nil
}

// Validate runs the full ordered check sequence on a raw token and returns
// the decoded payload on success. Errors are always typed; neither the
// token nor any key material appears in messages or span attributes.
func (v *Validator) Validate(ctx context.Context, raw string) (claims.Claims, error) {
	ctx, span := v.tracer.Start(ctx, "identity.Validate")
	defer span.End()

	parts, err := ParseToken(raw)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.alg", parts.Alg))

	cl, err := v.ValidateParsed(ctx, parts)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	return cl, nil
}

// ValidateParsed runs checks 2 onward on an already-parsed token. The cache
// uses this entry point so that a hit skips everything after the structural
// parse.
func (v *Validator) ValidateParsed(ctx context.Context, parts *TokenParts) (claims.Claims, error) {
	if err := v.verifySignature(ctx, parts); err != nil {
		return nil, err
	}
	if err := v.checkRevocation(ctx, parts.Claims); err != nil {
		return nil, err
	}
	now := v.now()
	skew := v.config.skew()
	if err := v.checkExpiry(parts.Claims, now, skew); err != nil {
		return nil, err
	}
	if err := v.checkRequiredClaims(parts.Claims); err != nil {
		return nil, err
	}
	if err := v.checkIssuer(parts.Claims); err != nil {
		return nil, err
	}
	if err := v.checkAudience(parts.Claims); err != nil {
		return nil, err
	}
	if err := v.checkIssuedAt(parts.Claims, now, skew); err != nil {
		return nil, err
	}
	return parts.Claims, nil
}

// verifySignature enforces the algorithm allow-list, resolves the
// verification key, and checks the signature over the signing string.
func (v *Validator) verifySignature(ctx context.Context, parts *TokenParts) error {
	if parts.Alg == "" || strings.EqualFold(parts.Alg, "none") || !allowedAlgorithms[parts.Alg] {
		return sserr.Newf(sserr.CodeSignatureInvalid, "algorithm %q is not allowed", parts.Alg)
	}
	method := jwt.GetSigningMethod(parts.Alg)
	if method == nil {
		return sserr.Newf(sserr.CodeSignatureInvalid, "algorithm %q is not allowed", parts.Alg)
	}

	key, err := v.keys.VerificationKey(ctx, parts.Kid, parts.Alg)
	if err != nil {
		if sserr.HasCode(err, sserr.CodeUnknownSigningKey) {
			return err
		}
		return sserr.Wrap(err, sserr.CodeUnknownSigningKey, "verification key lookup failed")
	}

	if err := method.Verify(parts.SigningString, parts.Signature, key); err != nil {
		return sserr.New(sserr.CodeSignatureInvalid, "token signature verification failed")
	}
	return nil
}

// checkRevocation consults the revocation list for the token's jti. Tokens
// without a jti cannot be revoked and pass. A backend error surfaces as an
// error: the list fails closed.
func (v *Validator) checkRevocation(ctx context.Context, cl claims.Claims) error {
	jti := cl.GetStringOr("jti", "")
	if jti == "" {
		return nil
	}
	revoked, err := v.revocation.IsRevoked(ctx, jti)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalStore, "revocation check failed")
	}
	if revoked {
		return sserr.New(sserr.CodeTokenRevoked, "token has been revoked")
	}
	return nil
}

func (v *Validator) checkExpiry(cl claims.Claims, now time.Time, skew time.Duration) error {
	exp, ok := cl.GetTime("exp")
	if !ok {
		// Absence is reported by the required-claims check, which runs
		// next and enumerates every missing claim at once.
		return nil
	}
	if now.After(exp.Add(skew)) {
		return sserr.Newf(sserr.CodeTokenExpired, "token expired at %s", exp.UTC().Format(time.RFC3339))
	}
	return nil
}

func (v *Validator) checkRequiredClaims(cl claims.Claims) error {
	missing := cl.MissingOf(v.config.required())
	if missing == nil {
		return nil
	}
	return sserr.Newf(sserr.CodeMissingClaims, "token is missing required claims: %s", strings.Join(missing, ", ")).
		WithDetail("missing", missing)
}

func (v *Validator) checkIssuer(cl claims.Claims) error {
	if len(v.config.IssuerWhitelist) == 0 {
		return nil
	}
	iss := cl.GetStringOr("iss", "")
	for _, allowed := range v.config.IssuerWhitelist {
		if iss == allowed {
			return nil
		}
	}
	return sserr.Newf(sserr.CodeInvalidIssuer, "token issuer %q is not trusted", iss)
}

func (v *Validator) checkAudience(cl claims.Claims) error {
	if len(v.config.ExpectedAudience) == 0 {
		return nil
	}
	audiences := cl.GetStringSlice("aud")
	for _, aud := range audiences {
		for _, expected := range v.config.ExpectedAudience {
			if aud == expected {
				return nil
			}
		}
	}
	return sserr.New(sserr.CodeInvalidAudience, "token audience does not include this service")
}

func (v *Validator) checkIssuedAt(cl claims.Claims, now time.Time, skew time.Duration) error {
	iat, ok := cl.GetTime("iat")
	if !ok {
		return nil
	}
	if iat.After(now.Add(skew)) {
		return sserr.Newf(sserr.CodeTokenIssuedInFuture, "token issued in the future at %s", iat.UTC().Format(time.RFC3339))
	}
	return nil
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
