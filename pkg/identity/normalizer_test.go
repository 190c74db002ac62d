package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironbucket/ironbucket-core/pkg/claims"
	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/tenant"
)

func idTestNormalizer(t *testing.T, cfg tenant.Config) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(idTestEnforcer(t, cfg))
	require.NoError(t, err)
	return n
}

// aliceClaims is a fully populated claim set for a human user.
func aliceClaims() claims.Claims {
	return claims.Claims{
		"sub":                "user-alice-001",
		"preferred_username": "alice",
		"email":              "alice@acme-corp.example.com",
		"given_name":         "Alice",
		"family_name":        "Smith",
		"tenant":             "acme-corp",
		"region":             "eu-central-1",
		"groups":             []any{"engineering", "platform"},
		"iss":                "https://auth.acme-corp.example.com",
		"jti":                "jti-alice-1",
		"iat":                float64(1_700_000_000),
		"exp":                float64(1_700_003_600),
		"realm_access": map[string]any{
			"roles": []any{"admin", "user"},
		},
		"resource_access": map[string]any{
			"storage-api": map[string]any{
				"roles": []any{"bucket-admin"},
			},
		},
	}
}

// ============================================================
// Normalize: field mapping
// ============================================================

func TestNormalizer_Normalize_FullProfile(t *testing.T) {
	t.Parallel()

	n := idTestNormalizer(t, tenant.Config{Enabled: true})
	enrichment := EnrichmentContext{
		RequestID: "req-42",
		ClientIP:  "203.0.113.9",
		UserAgent: "ironbucket-cli/2.1",
	}

	id, err := n.Normalize(aliceClaims(), "", enrichment)
	require.NoError(t, err)

	assert.Equal(t, "user-alice-001", id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, "alice@acme-corp.example.com", id.Email)
	assert.Equal(t, "Alice", id.FirstName)
	assert.Equal(t, "Smith", id.LastName)
	assert.Equal(t, "Alice Smith", id.FullName)
	assert.Equal(t, "acme-corp", id.TenantID)
	assert.Equal(t, "eu-central-1", id.Region)
	assert.Equal(t, []string{"engineering", "platform"}, id.Groups)
	assert.Equal(t, []string{"admin", "user"}, id.RealmRoles)
	assert.Equal(t, map[string][]string{"storage-api": {"bucket-admin"}}, id.ResourceRoles)
	assert.Equal(t, []string{"admin", "user", "bucket-admin"}, id.Roles)
	assert.False(t, id.IsServiceAccount)
	assert.Equal(t, "https://auth.acme-corp.example.com", id.Issuer)
	assert.Equal(t, "jti-alice-1", id.TokenID)
	assert.Equal(t, int64(1_700_003_600), id.ExpiresAt.Unix())
	assert.Equal(t, int64(1_700_000_000), id.IssuedAt.Unix())
	assert.Equal(t, "req-42", id.RequestID)
	assert.Equal(t, "203.0.113.9", id.ClientIP)
	assert.Equal(t, "ironbucket-cli/2.1", id.UserAgent)
	assert.False(t, id.CreatedAt.IsZero())
	assert.Nil(t, id.Validate())
}

func TestNormalizer_Normalize_UsernameFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mod  func(claims.Claims)
		want string
	}{
		{
			name: "preferred_username wins",
			mod:  func(claims.Claims) {},
			want: "alice",
		},
		{
			name: "email when preferred_username absent",
			mod:  func(cl claims.Claims) { delete(cl, "preferred_username") },
			want: "alice@acme-corp.example.com",
		},
		{
			name: "sub when both absent",
			mod: func(cl claims.Claims) {
				delete(cl, "preferred_username")
				delete(cl, "email")
			},
			want: "user-alice-001",
		},
		{
			name: "empty preferred_username falls through",
			mod:  func(cl claims.Claims) { cl["preferred_username"] = "" },
			want: "alice@acme-corp.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl := aliceClaims()
			tt.mod(cl)
			n := idTestNormalizer(t, tenant.Config{Enabled: true})
			id, err := n.Normalize(cl, "", EnrichmentContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.Username)
		})
	}
}

func TestNormalizer_Normalize_FullNameFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mod  func(claims.Claims)
		want string
	}{
		{name: "given and family joined", mod: func(claims.Claims) {}, want: "Alice Smith"},
		{name: "given only", mod: func(cl claims.Claims) { delete(cl, "family_name") }, want: "Alice"},
		{name: "family only", mod: func(cl claims.Claims) { delete(cl, "given_name") }, want: "Smith"},
		{
			name: "neither falls back to username",
			mod: func(cl claims.Claims) {
				delete(cl, "given_name")
				delete(cl, "family_name")
			},
			want: "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl := aliceClaims()
			tt.mod(cl)
			n := idTestNormalizer(t, tenant.Config{Enabled: true})
			id, err := n.Normalize(cl, "", EnrichmentContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.FullName)
		})
	}
}

// ============================================================
// Normalize: roles
// ============================================================

func TestNormalizer_Normalize_Roles(t *testing.T) {
	t.Parallel()

	n := idTestNormalizer(t, tenant.Config{Enabled: true})

	t.Run("non-string realm roles filtered silently", func(t *testing.T) {
		t.Parallel()
		cl := aliceClaims()
		cl["realm_access"] = map[string]any{"roles": []any{"admin", 42, nil, "user"}}
		id, err := n.Normalize(cl, "", EnrichmentContext{})
		require.NoError(t, err)
		assert.Equal(t, []string{"admin", "user"}, id.RealmRoles)
	})

	t.Run("resources with no string roles dropped", func(t *testing.T) {
		t.Parallel()
		cl := aliceClaims()
		cl["resource_access"] = map[string]any{
			"storage-api": map[string]any{"roles": []any{"bucket-admin"}},
			"empty-api":   map[string]any{"roles": []any{}},
			"bogus-api":   "not a map",
		}
		id, err := n.Normalize(cl, "", EnrichmentContext{})
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{"storage-api": {"bucket-admin"}}, id.ResourceRoles)
	})

	t.Run("no role claims at all", func(t *testing.T) {
		t.Parallel()
		cl := aliceClaims()
		delete(cl, "realm_access")
		delete(cl, "resource_access")
		id, err := n.Normalize(cl, "", EnrichmentContext{})
		require.NoError(t, err)
		assert.Nil(t, id.RealmRoles)
		assert.Nil(t, id.ResourceRoles)
		assert.Nil(t, id.Roles)
	})

	t.Run("flattened view starts with realm roles", func(t *testing.T) {
		t.Parallel()
		cl := aliceClaims()
		cl["resource_access"] = map[string]any{
			"a-api": map[string]any{"roles": []any{"reader"}},
			"b-api": map[string]any{"roles": []any{"writer"}},
		}
		id, err := n.Normalize(cl, "", EnrichmentContext{})
		require.NoError(t, err)
		require.Len(t, id.Roles, 4)
		assert.Equal(t, []string{"admin", "user"}, id.Roles[:2])
		assert.ElementsMatch(t, []string{"reader", "writer"}, id.Roles[2:])
	})
}

// ============================================================
// Normalize: service accounts
// ============================================================

func TestNormalizer_Normalize_ServiceAccounts(t *testing.T) {
	t.Parallel()

	n := idTestNormalizer(t, tenant.Config{Enabled: true})

	tests := []struct {
		name string
		mod  func(claims.Claims)
		want bool
	}{
		{
			name: "sa- subject prefix",
			mod:  func(cl claims.Claims) { cl["sub"] = "sa-ci-cd" },
			want: true,
		},
		{
			name: "explicit flag claim",
			mod:  func(cl claims.Claims) { cl["is_service_account"] = true },
			want: true,
		},
		{
			name: "camel-case flag claim",
			mod:  func(cl claims.Claims) { cl["isServiceAccount"] = true },
			want: true,
		},
		{
			name: "flag false and plain subject",
			mod:  func(cl claims.Claims) { cl["is_service_account"] = false },
			want: false,
		},
		{
			name: "prefix elsewhere in subject does not count",
			mod:  func(cl claims.Claims) { cl["sub"] = "user-sa-like" },
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl := aliceClaims()
			tt.mod(cl)
			id, err := n.Normalize(cl, "", EnrichmentContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.IsServiceAccount)
		})
	}
}

// ============================================================
// Normalize: tenant resolution
// ============================================================

func TestNormalizer_Normalize_TenantResolution(t *testing.T) {
	t.Parallel()

	t.Run("request tenant wins over claim", func(t *testing.T) {
		t.Parallel()
		n := idTestNormalizer(t, tenant.Config{Enabled: true})
		id, err := n.Normalize(aliceClaims(), "globex", EnrichmentContext{})
		require.NoError(t, err)
		assert.Equal(t, "globex", id.TenantID)
	})

	t.Run("claim tenant when no hint", func(t *testing.T) {
		t.Parallel()
		n := idTestNormalizer(t, tenant.Config{Enabled: true})
		id, err := n.Normalize(aliceClaims(), "", EnrichmentContext{})
		require.NoError(t, err)
		assert.Equal(t, "acme-corp", id.TenantID)
	})

	t.Run("default tenant when neither present", func(t *testing.T) {
		t.Parallel()
		cl := aliceClaims()
		delete(cl, "tenant")
		n := idTestNormalizer(t, tenant.Config{Enabled: true})
		id, err := n.Normalize(cl, "", EnrichmentContext{})
		require.NoError(t, err)
		assert.Equal(t, "default", id.TenantID)
	})

	t.Run("single-tenant mode overrides everything", func(t *testing.T) {
		t.Parallel()
		n := idTestNormalizer(t, tenant.Config{Enabled: false, SingleTenantValue: "customer-a"})
		id, err := n.Normalize(aliceClaims(), "globex", EnrichmentContext{})
		require.NoError(t, err)
		assert.Equal(t, "customer-a", id.TenantID)
	})

	t.Run("invalid hint rejected", func(t *testing.T) {
		t.Parallel()
		n := idTestNormalizer(t, tenant.Config{Enabled: true})
		_, err := n.Normalize(aliceClaims(), "../../etc/passwd", EnrichmentContext{})
		require.Error(t, err)
		assert.True(t, sserr.HasCode(err, sserr.CodeTenantInvalidFormat), "got %v", err)
		assert.True(t, sserr.IsTenantViolation(err))
	})

	t.Run("header claim mismatch when enforced", func(t *testing.T) {
		t.Parallel()
		n := idTestNormalizer(t, tenant.Config{Enabled: true, ValidateHeaderMatch: true})
		_, err := n.Normalize(aliceClaims(), "globex", EnrichmentContext{})
		require.Error(t, err)
		assert.True(t, sserr.HasCode(err, sserr.CodeTenantMismatch), "got %v", err)
	})
}

// ============================================================
// Normalize: enrichment and completeness
// ============================================================

func TestNormalizer_Normalize_RequestIDFallback(t *testing.T) {
	t.Parallel()

	n := idTestNormalizer(t, tenant.Config{Enabled: true})
	id, err := n.Normalize(aliceClaims(), "", EnrichmentContext{})
	require.NoError(t, err)
	require.NotEmpty(t, id.RequestID)
	_, parseErr := uuid.Parse(id.RequestID)
	assert.NoError(t, parseErr, "generated request id should be a uuid")
}

func TestNormalizer_Normalize_IncompleteIdentity(t *testing.T) {
	t.Parallel()

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()

		cl := aliceClaims()
		delete(cl, "sub")
		delete(cl, "preferred_username")
		delete(cl, "email")

		n := idTestNormalizer(t, tenant.Config{Enabled: true})
		_, err := n.Normalize(cl, "", EnrichmentContext{})
		require.Error(t, err)
		assert.True(t, sserr.HasCode(err, sserr.CodeIncompleteIdentity), "got %v", err)

		// The username chain bottoms out at "unknown", so only the
		// subject itself is reported missing.
		ssErr, ok := sserr.AsError(err)
		require.True(t, ok)
		assert.Equal(t, []string{"user_id"}, ssErr.Details["missing_fields"])
	})

	t.Run("missing issuer and lifetime claims enumerated", func(t *testing.T) {
		t.Parallel()

		cl := aliceClaims()
		delete(cl, "iss")
		delete(cl, "iat")
		delete(cl, "exp")

		n := idTestNormalizer(t, tenant.Config{Enabled: true})
		_, err := n.Normalize(cl, "", EnrichmentContext{})
		require.Error(t, err)
		assert.True(t, sserr.HasCode(err, sserr.CodeIncompleteIdentity), "got %v", err)

		ssErr, ok := sserr.AsError(err)
		require.True(t, ok)
		assert.Equal(t, []string{"issuer", "issued_at", "expires_at"}, ssErr.Details["missing_fields"])
	})
}

func TestNormalizer_Normalize_UsernameUnknownTerminal(t *testing.T) {
	t.Parallel()

	cl := aliceClaims()
	delete(cl, "sub")
	delete(cl, "preferred_username")
	delete(cl, "email")

	n := idTestNormalizer(t, tenant.Config{Enabled: true})
	assert.Equal(t, "unknown", n.resolveUsername(cl, ""))
}

func TestNormalizer_Normalize_RawClaimsDetached(t *testing.T) {
	t.Parallel()

	cl := aliceClaims()
	n := idTestNormalizer(t, tenant.Config{Enabled: true})
	id, err := n.Normalize(cl, "", EnrichmentContext{})
	require.NoError(t, err)

	// Mutating the input must not affect the identity.
	cl["sub"] = "mutated"
	assert.Equal(t, "user-alice-001", id.RawClaims.GetStringOr("sub", ""))
}

func TestNormalizer_Normalize_Deterministic(t *testing.T) {
	t.Parallel()

	n := idTestNormalizer(t, tenant.Config{Enabled: true})
	n.now = func() time.Time { return time.Unix(1_700_000_500, 0) }

	a, err := n.Normalize(aliceClaims(), "", EnrichmentContext{RequestID: "r"})
	require.NoError(t, err)
	b, err := n.Normalize(aliceClaims(), "", EnrichmentContext{RequestID: "r"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
