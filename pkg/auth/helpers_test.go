package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ironbucket/ironbucket-core/pkg/identity"
	"github.com/ironbucket/ironbucket-core/pkg/keys"
)

const testHMACSecret = "this-is-a-32-byte-test-signing-k"

// authTestToken signs a token valid for an hour with the shared test secret.
func authTestToken(t *testing.T, extra map[string]any) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "user-alice-001",
		"iss": "https://auth.acme-corp.example.com",
		"aud": "ironbucket",
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(testHMACSecret))
	require.NoError(t, err)
	return raw
}

// authTestEngine builds a multi-tenant engine over the shared test secret.
func authTestEngine(t *testing.T) *identity.Engine {
	t.Helper()
	provider, err := keys.NewStaticHMAC(keys.Secret(testHMACSecret))
	require.NoError(t, err)
	engine, err := identity.NewEngine(identity.DefaultEngineConfig(), provider, nil)
	require.NoError(t, err)
	return engine
}

// authTestIdentity is a populated identity for propagation tests.
func authTestIdentity() *identity.NormalizedIdentity {
	return &identity.NormalizedIdentity{
		UserID:    "user-alice-001",
		Username:  "alice",
		Email:     "alice@acme-corp.example.com",
		TenantID:  "acme-corp",
		Roles:     []string{"admin", "user"},
		RequestID: "req-42",
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}
