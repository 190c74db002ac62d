package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/keys"
)

// fakeChecker is a revocation checker with scriptable results.
type fakeChecker struct {
	revoked map[string]bool
	err     error
}

func (f *fakeChecker) IsRevoked(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

// ============================================================
// Validate: happy path
// ============================================================

func TestValidator_Validate_HMAC(t *testing.T) {
	t.Parallel()

	claims := idTestBaseClaims()
	claims["preferred_username"] = "alice"
	raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

	v := idTestValidator(t, ValidatorConfig{}, time.Now())
	cl, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1234", cl.GetStringOr("sub", ""))
	assert.Equal(t, "alice", cl.GetStringOr("preferred_username", ""))
}

func TestValidator_Validate_RSA(t *testing.T) {
	t.Parallel()

	priv, pub := idTestRSAKeyPair(t)
	raw := idTestRSAToken(t, priv, "key-1", idTestBaseClaims())

	v, err := NewValidator(ValidatorConfig{}, keys.NewSet(map[string]any{"key-1": pub}), nil)
	require.NoError(t, err)

	cl, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1234", cl.GetStringOr("sub", ""))
}

func TestValidator_Validate_ECDSA(t *testing.T) {
	t.Parallel()

	priv, pub := idTestECDSAKeyPair(t)
	raw := idTestECDSAToken(t, priv, idTestBaseClaims())

	v, err := NewValidator(ValidatorConfig{}, keys.NewSet(nil).WithFallback(pub), nil)
	require.NoError(t, err)

	cl, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1234", cl.GetStringOr("sub", ""))
}

// ============================================================
// Validate: signature and key failures
// ============================================================

func TestValidator_Validate_SignatureFailures(t *testing.T) {
	t.Parallel()

	v := idTestValidator(t, ValidatorConfig{}, time.Now())

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		raw := idTestHMACToken(t, []byte("another-32-byte-secret-key-here!"), idTestBaseClaims())
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeSignatureInvalid), "got %v", err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		raw := idTestHMACToken(t, []byte(testHMACSecret), idTestBaseClaims())
		parts, err := ParseToken(raw)
		require.NoError(t, err)
		claims := idTestBaseClaims()
		claims["sub"] = "user-9999"
		forged := idTestHMACToken(t, []byte("another-32-byte-secret-key-here!"), claims)
		forgedParts, err := ParseToken(forged)
		require.NoError(t, err)
		// Original signature over a different payload.
		forgedParts.Signature = parts.Signature
		_, err = v.ValidateParsed(context.Background(), forgedParts)
		assert.True(t, sserr.HasCode(err, sserr.CodeSignatureInvalid), "got %v", err)
	})

	t.Run("alg none", func(t *testing.T) {
		t.Parallel()
		token := jwt.NewWithClaims(jwt.SigningMethodNone, idTestBaseClaims())
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeSignatureInvalid), "got %v", err)
		assert.Contains(t, err.Error(), "not allowed")
	})

	t.Run("alg outside allow-list", func(t *testing.T) {
		t.Parallel()
		raw := idTestHMACToken(t, []byte(testHMACSecret), idTestBaseClaims())
		parts, err := ParseToken(raw)
		require.NoError(t, err)
		parts.Alg = "PS256"
		_, err = v.ValidateParsed(context.Background(), parts)
		assert.True(t, sserr.HasCode(err, sserr.CodeSignatureInvalid), "got %v", err)
	})
}

func TestValidator_Validate_UnknownSigningKey(t *testing.T) {
	t.Parallel()

	priv, pub := idTestRSAKeyPair(t)
	raw := idTestRSAToken(t, priv, "rotated-away", idTestBaseClaims())

	v, err := NewValidator(ValidatorConfig{}, keys.NewSet(map[string]any{"current": pub}), nil)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), raw)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnknownSigningKey), "got %v", err)
}

// ============================================================
// Validate: revocation
// ============================================================

func TestValidator_Validate_Revocation(t *testing.T) {
	t.Parallel()

	makeToken := func(t *testing.T, jti string) string {
		claims := idTestBaseClaims()
		claims["jti"] = jti
		return idTestHMACToken(t, []byte(testHMACSecret), claims)
	}

	newValidator := func(t *testing.T, checker *fakeChecker) *Validator {
		provider, err := keys.NewStaticHMAC(keys.Secret(testHMACSecret))
		require.NoError(t, err)
		v, err := NewValidator(ValidatorConfig{}, provider, checker)
		require.NoError(t, err)
		return v
	}

	t.Run("revoked token rejected", func(t *testing.T) {
		t.Parallel()
		v := newValidator(t, &fakeChecker{revoked: map[string]bool{"jti-1": true}})
		_, err := v.Validate(context.Background(), makeToken(t, "jti-1"))
		assert.True(t, sserr.HasCode(err, sserr.CodeTokenRevoked), "got %v", err)
	})

	t.Run("unrevoked token passes", func(t *testing.T) {
		t.Parallel()
		v := newValidator(t, &fakeChecker{revoked: map[string]bool{"jti-1": true}})
		_, err := v.Validate(context.Background(), makeToken(t, "jti-2"))
		assert.NoError(t, err)
	})

	t.Run("backend error fails closed", func(t *testing.T) {
		t.Parallel()
		v := newValidator(t, &fakeChecker{err: errors.New("redis down")})
		_, err := v.Validate(context.Background(), makeToken(t, "jti-3"))
		require.Error(t, err)
		assert.True(t, sserr.HasCode(err, sserr.CodeInternalStore), "got %v", err)
	})

	t.Run("token without jti skips the check", func(t *testing.T) {
		t.Parallel()
		v := newValidator(t, &fakeChecker{err: errors.New("must not be called")})
		_, err := v.Validate(context.Background(), idTestHMACToken(t, []byte(testHMACSecret), idTestBaseClaims()))
		assert.NoError(t, err)
	})

	t.Run("non-string jti treated as absent", func(t *testing.T) {
		t.Parallel()
		v := newValidator(t, &fakeChecker{err: errors.New("must not be called")})
		claims := idTestBaseClaims()
		claims["jti"] = float64(12345)
		_, err := v.Validate(context.Background(), idTestHMACToken(t, []byte(testHMACSecret), claims))
		assert.NoError(t, err)
	})
}

// ============================================================
// Validate: temporal checks and clock skew
// ============================================================

func TestValidator_Validate_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		exp     time.Time
		skew    time.Duration
		wantErr bool
	}{
		{name: "expires one second from now", exp: now.Add(time.Second), skew: -1, wantErr: false},
		{name: "expired one second ago, no skew", exp: now.Add(-time.Second), skew: -1, wantErr: true},
		{name: "expired ten seconds ago, inside default skew", exp: now.Add(-10 * time.Second), skew: 0, wantErr: false},
		{name: "expired beyond default skew", exp: now.Add(-31 * time.Second), skew: 0, wantErr: true},
		{name: "exactly at expiry", exp: now, skew: -1, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims := idTestBaseClaims()
			claims["iat"] = now.Add(-time.Hour).Unix()
			claims["exp"] = tt.exp.Unix()
			raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

			v := idTestValidator(t, ValidatorConfig{ClockSkew: tt.skew}, now)
			_, err := v.Validate(context.Background(), raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sserr.HasCode(err, sserr.CodeTokenExpired), "got %v", err)
				// The message names the recorded expiry.
				assert.Contains(t, err.Error(), tt.exp.UTC().Format(time.RFC3339))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_Validate_IssuedAtBoundary(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		iat     time.Time
		wantErr bool
	}{
		{name: "issued 15s in the future, inside 30s skew", iat: now.Add(15 * time.Second), wantErr: false},
		{name: "issued 60s in the future, outside 30s skew", iat: now.Add(60 * time.Second), wantErr: true},
		{name: "issued in the past", iat: now.Add(-time.Minute), wantErr: false},
		{name: "issued exactly at the skew edge", iat: now.Add(30 * time.Second), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims := idTestBaseClaims()
			claims["iat"] = tt.iat.Unix()
			claims["exp"] = now.Add(time.Hour).Unix()
			raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

			v := idTestValidator(t, ValidatorConfig{ClockSkew: 30 * time.Second}, now)
			_, err := v.Validate(context.Background(), raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sserr.HasCode(err, sserr.CodeTokenIssuedInFuture), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ============================================================
// Validate: required claims, issuer, audience
// ============================================================

func TestValidator_Validate_MissingClaims(t *testing.T) {
	t.Parallel()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "user-1234",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		// iss and aud deliberately absent.
	}
	raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

	v := idTestValidator(t, ValidatorConfig{}, now)
	_, err := v.Validate(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeMissingClaims), "got %v", err)

	// A single error names every absent claim.
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"iss", "aud"}, ssErr.Details["missing"])
	assert.Contains(t, err.Error(), "iss")
	assert.Contains(t, err.Error(), "aud")
}

func TestValidator_Validate_CustomRequiredClaims(t *testing.T) {
	t.Parallel()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "user-1234",
		"exp": now.Add(time.Hour).Unix(),
	}
	raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

	v := idTestValidator(t, ValidatorConfig{RequiredClaims: []string{"sub", "exp"}}, now)
	_, err := v.Validate(context.Background(), raw)
	assert.NoError(t, err)
}

func TestValidator_Validate_Issuer(t *testing.T) {
	t.Parallel()

	now := time.Now()
	whitelist := []string{"https://auth.acme-corp.example.com", "https://auth.other.example.com"}

	tests := []struct {
		name      string
		issuer    string
		whitelist []string
		wantErr   bool
	}{
		{name: "whitelisted issuer", issuer: "https://auth.acme-corp.example.com", whitelist: whitelist, wantErr: false},
		{name: "unlisted issuer", issuer: "https://auth.evil.example.com", whitelist: whitelist, wantErr: true},
		{name: "empty whitelist accepts any", issuer: "https://auth.anywhere.example.com", whitelist: nil, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims := idTestBaseClaims()
			claims["iss"] = tt.issuer
			raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

			v := idTestValidator(t, ValidatorConfig{IssuerWhitelist: tt.whitelist}, now)
			_, err := v.Validate(context.Background(), raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sserr.HasCode(err, sserr.CodeInvalidIssuer), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_Validate_Audience(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name     string
		aud      any
		expected []string
		wantErr  bool
	}{
		{name: "string audience matches", aud: "ironbucket", expected: []string{"ironbucket"}, wantErr: false},
		{name: "array audience intersects", aud: []string{"other-svc", "ironbucket"}, expected: []string{"ironbucket"}, wantErr: false},
		{name: "no intersection", aud: []string{"other-svc"}, expected: []string{"ironbucket"}, wantErr: true},
		{name: "string audience mismatch", aud: "other-svc", expected: []string{"ironbucket"}, wantErr: true},
		{name: "no expectation disables the check", aud: "anything", expected: nil, wantErr: false},
		{name: "malformed audience type treated as non-matching", aud: 42, expected: []string{"ironbucket"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims := idTestBaseClaims()
			claims["aud"] = tt.aud
			raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

			v := idTestValidator(t, ValidatorConfig{ExpectedAudience: tt.expected}, now)
			_, err := v.Validate(context.Background(), raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sserr.HasCode(err, sserr.CodeInvalidAudience), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ============================================================
// Validate: check ordering
// ============================================================

func TestValidator_Validate_FirstFailureWins(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	t.Run("signature beats expiry", func(t *testing.T) {
		t.Parallel()
		claims := idTestBaseClaims()
		claims["exp"] = now.Add(-time.Hour).Unix()
		raw := idTestHMACToken(t, []byte("another-32-byte-secret-key-here!"), claims)
		v := idTestValidator(t, ValidatorConfig{}, now)
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeSignatureInvalid), "got %v", err)
	})

	t.Run("expiry beats missing claims", func(t *testing.T) {
		t.Parallel()
		claims := jwt.MapClaims{
			"sub": "user-1234",
			"exp": now.Add(-time.Hour).Unix(),
			// iss, aud, iat absent.
		}
		raw := idTestHMACToken(t, []byte(testHMACSecret), claims)
		v := idTestValidator(t, ValidatorConfig{}, now)
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeTokenExpired), "got %v", err)
	})

	t.Run("missing claims beat issuer", func(t *testing.T) {
		t.Parallel()
		claims := jwt.MapClaims{
			"sub": "user-1234",
			"iss": "https://auth.evil.example.com",
			"iat": now.Unix(),
			"exp": now.Add(time.Hour).Unix(),
			// aud absent.
		}
		raw := idTestHMACToken(t, []byte(testHMACSecret), claims)
		v := idTestValidator(t, ValidatorConfig{IssuerWhitelist: []string{"https://auth.acme-corp.example.com"}}, now)
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeMissingClaims), "got %v", err)
	})

	t.Run("issuer beats audience", func(t *testing.T) {
		t.Parallel()
		claims := idTestBaseClaims()
		claims["iss"] = "https://auth.evil.example.com"
		claims["aud"] = "wrong-audience"
		raw := idTestHMACToken(t, []byte(testHMACSecret), claims)
		v := idTestValidator(t, ValidatorConfig{
			IssuerWhitelist:  []string{"https://auth.acme-corp.example.com"},
			ExpectedAudience: []string{"ironbucket"},
		}, now)
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeInvalidIssuer), "got %v", err)
	})

	t.Run("audience beats future iat", func(t *testing.T) {
		t.Parallel()
		claims := idTestBaseClaims()
		claims["aud"] = "wrong-audience"
		claims["iat"] = now.Add(time.Hour).Unix()
		raw := idTestHMACToken(t, []byte(testHMACSecret), claims)
		v := idTestValidator(t, ValidatorConfig{ExpectedAudience: []string{"ironbucket"}}, now)
		_, err := v.Validate(context.Background(), raw)
		assert.True(t, sserr.HasCode(err, sserr.CodeInvalidAudience), "got %v", err)
	})
}

// ============================================================
// Validate: error hygiene
// ============================================================

func TestValidator_Validate_ErrorsNeverLeakSecrets(t *testing.T) {
	t.Parallel()

	now := time.Now()
	raw := idTestHMACToken(t, []byte("another-32-byte-secret-key-here!"), idTestBaseClaims())

	v := idTestValidator(t, ValidatorConfig{}, now)
	_, err := v.Validate(context.Background(), raw)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testHMACSecret)
	assert.NotContains(t, err.Error(), raw)
}
