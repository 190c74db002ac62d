package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ironbucket/ironbucket-core/pkg/keys"
	"github.com/ironbucket/ironbucket-core/pkg/tenant"
)

// testHMACSecret satisfies the 32-byte minimum for HMAC keys.
const testHMACSecret = "this-is-a-32-byte-test-signing-k"

// idTestBaseClaims returns a claim set that passes the default checks:
// all required claims present, valid for an hour.
func idTestBaseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": "user-1234",
		"iss": "https://auth.acme-corp.example.com",
		"aud": "ironbucket",
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// idTestHMACToken creates an HS256-signed token with the given claims.
func idTestHMACToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign HMAC token")
	return tokenStr
}

// idTestRSAKeyPair generates a 2048-bit RSA key pair for testing.
func idTestRSAKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")
	return privKey, &privKey.PublicKey
}

// idTestRSAToken creates an RS256-signed token with the given claims and kid.
func idTestRSAToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RSA token")
	return tokenStr
}

// idTestECDSAKeyPair generates a P-256 ECDSA key pair for testing.
func idTestECDSAKeyPair(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PublicKey) {
	t.Helper()
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate ECDSA key pair")
	return privKey, &privKey.PublicKey
}

// idTestECDSAToken creates an ES256-signed token with the given claims.
func idTestECDSAToken(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign ECDSA token")
	return tokenStr
}

// idTestValidator builds a validator over the shared HMAC secret with a
// fixed clock.
func idTestValidator(t *testing.T, config ValidatorConfig, now time.Time) *Validator {
	t.Helper()
	provider, err := keys.NewStaticHMAC(keys.Secret(testHMACSecret))
	require.NoError(t, err)
	v, err := NewValidator(config, provider, nil)
	require.NoError(t, err)
	v.now = func() time.Time { return now }
	return v
}

// idTestEnforcer builds a multi-tenant enforcer with default settings.
func idTestEnforcer(t *testing.T, cfg tenant.Config) *tenant.Enforcer {
	t.Helper()
	e, err := tenant.NewEnforcer(cfg)
	require.NoError(t, err)
	return e
}
