package tenant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
)

func newMultiTenant(t *testing.T, mutate func(*Config)) *Enforcer {
	t.Helper()
	cfg := Config{Enabled: true}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEnforcer(cfg)
	require.NoError(t, err)
	return e
}

func TestNewEnforcer_Defaults(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	assert.True(t, e.Enabled())
	assert.Equal(t, "X-Tenant-ID", e.HeaderName())
	assert.Equal(t, "tenant", e.ClaimName())
}

func TestNewEnforcer_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewEnforcer(Config{Enabled: true, DefaultTenant: "bad/tenant"})
	require.Error(t, err)
	assert.Equal(t, sserr.CodeInternalConfiguration, sserr.GetCode(err))

	_, err = NewEnforcer(Config{Enabled: false, SingleTenantValue: "no spaces"})
	require.Error(t, err)
	assert.Equal(t, sserr.CodeInternalConfiguration, sserr.GetCode(err))

	_, err = NewEnforcer(Config{Enabled: true, AllowedTenantPattern: "([unclosed"})
	require.Error(t, err)
	assert.Equal(t, sserr.CodeInternalConfiguration, sserr.GetCode(err))
}

func TestNewEnforcer_CustomAllowedPattern(t *testing.T) {
	t.Parallel()

	e := newMultiTenant(t, func(cfg *Config) {
		cfg.AllowedTenantPattern = `^[a-z]+\.[a-z]+$`
		cfg.DefaultTenant = "acme.corp"
	})

	assert.True(t, e.ValidIdentifier("acme.corp"))
	assert.False(t, e.ValidIdentifier("acme-corp"), "default charset no longer applies")
	assert.False(t, e.ValidIdentifier("acme/corp"))

	got, err := e.Resolve("globex.inc", "")
	require.NoError(t, err)
	assert.Equal(t, "globex.inc", got)

	_, err = e.Resolve("globex-inc", "")
	require.Error(t, err)
	assert.Equal(t, sserr.CodeTenantInvalidFormat, sserr.GetCode(err))
}

func TestEnforcer_ValidIdentifier(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "simple", input: "acme-corp", want: true},
		{name: "underscore", input: "acme_corp", want: true},
		{name: "digits", input: "tenant42", want: true},
		{name: "single char", input: "a", want: true},
		{name: "max length", input: strings.Repeat("a", 255), want: true},
		{name: "empty", input: "", want: false},
		{name: "too long", input: strings.Repeat("a", 256), want: false},
		{name: "path traversal", input: "../../etc/passwd", want: false},
		{name: "slash", input: "acme/corp", want: false},
		{name: "dot", input: "acme.corp", want: false},
		{name: "space", input: "acme corp", want: false},
		{name: "unicode", input: "acmé", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.ValidIdentifier(tt.input))
		})
	}
}

func TestEnforcer_Resolve_SingleTenant(t *testing.T) {
	t.Parallel()
	e, err := NewEnforcer(Config{Enabled: false, SingleTenantValue: "customer-a"})
	require.NoError(t, err)

	// Request and claim tenants are ignored without error.
	tenant, err := e.Resolve("other-tenant", "yet-another")
	require.NoError(t, err)
	assert.Equal(t, "customer-a", tenant)

	// Even malformed inputs are ignored, not rejected.
	tenant, err = e.Resolve("../../etc/passwd", "")
	require.NoError(t, err)
	assert.Equal(t, "customer-a", tenant)
}

func TestEnforcer_Resolve_MultiTenant(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		mutate        func(*Config)
		requestTenant string
		claimTenant   string
		want          string
		wantCode      sserr.Code
	}{
		{
			name:          "request tenant wins over claim",
			requestTenant: "acme-corp",
			claimTenant:   "globex",
			want:          "acme-corp",
		},
		{
			name:        "claim tenant used when no request tenant",
			claimTenant: "globex",
			want:        "globex",
		},
		{
			name: "default when neither present",
			want: "default",
		},
		{
			name:   "configured default when neither present",
			mutate: func(c *Config) { c.DefaultTenant = "fallback_tenant" },
			want:   "fallback_tenant",
		},
		{
			name:          "invalid request tenant rejected",
			requestTenant: "../../etc/passwd",
			wantCode:      sserr.CodeTenantInvalidFormat,
		},
		{
			name:        "invalid claim tenant rejected",
			claimTenant: "bad tenant",
			wantCode:    sserr.CodeTenantInvalidFormat,
		},
		{
			name:          "mismatch ignored when match validation off",
			requestTenant: "acme-corp",
			claimTenant:   "globex",
			want:          "acme-corp",
		},
		{
			name:          "mismatch rejected when match validation on",
			mutate:        func(c *Config) { c.ValidateHeaderMatch = true },
			requestTenant: "acme-corp",
			claimTenant:   "globex",
			wantCode:      sserr.CodeTenantMismatch,
		},
		{
			name:          "match validation passes on agreement",
			mutate:        func(c *Config) { c.ValidateHeaderMatch = true },
			requestTenant: "acme-corp",
			claimTenant:   "acme-corp",
			want:          "acme-corp",
		},
		{
			name:          "match validation skipped when claim absent",
			mutate:        func(c *Config) { c.ValidateHeaderMatch = true },
			requestTenant: "acme-corp",
			want:          "acme-corp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newMultiTenant(t, tt.mutate)
			tenant, err := e.Resolve(tt.requestTenant, tt.claimTenant)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, sserr.GetCode(err))
				assert.True(t, sserr.IsTenantViolation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tenant)
		})
	}
}

func TestEnforcer_ScopedPath(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	path, err := e.ScopedPath("acme-corp", "reports/2026/summary.pdf")
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme-corp/reports/2026/summary.pdf", path)

	path, err = e.ScopedPath("acme-corp", "/leading/slash")
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme-corp/leading/slash", path)

	_, err = e.ScopedPath("../../etc/passwd", "file")
	require.Error(t, err)
	assert.Equal(t, sserr.CodeTenantInvalidFormat, sserr.GetCode(err))
}

func TestEnforcer_ScopedPath_CustomPrefix(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, func(c *Config) { c.PathPrefix = "org/" })

	path, err := e.ScopedPath("acme-corp", "file.txt")
	require.NoError(t, err)
	assert.Equal(t, "org/acme-corp/file.txt", path)
}

func TestEnforcer_ScopedBucket(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	bucket, err := e.ScopedBucket("acme-corp")
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme-corp", bucket)

	_, err = e.ScopedBucket("")
	require.Error(t, err)
}

func TestEnforcer_CanAccessBucket(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	assert.True(t, e.CanAccessBucket("acme-corp", "acme-corp"), "bucket named after tenant")
	assert.True(t, e.CanAccessBucket("acme-corp", "tenant-acme-corp"), "scoped bucket")
	assert.False(t, e.CanAccessBucket("acme-corp", "globex"))
	assert.False(t, e.CanAccessBucket("acme-corp", "tenant-globex"))
	assert.False(t, e.CanAccessBucket("", "acme-corp"))
	assert.False(t, e.CanAccessBucket("acme-corp", ""))
}

func TestEnforcer_CanAccessBucket_SingleTenant(t *testing.T) {
	t.Parallel()
	e, err := NewEnforcer(Config{Enabled: false})
	require.NoError(t, err)

	assert.True(t, e.CanAccessBucket("anything", "any-bucket"))
}

func TestEnforcer_CanAccessResource(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	assert.True(t, e.CanAccessResource("acme-corp", "tenant-acme-corp/file.txt"))
	assert.True(t, e.CanAccessResource("acme-corp", "tenant-acme-corp"), "bare prefix")
	assert.False(t, e.CanAccessResource("acme-corp", "tenant-globex/file.txt"))
	assert.False(t, e.CanAccessResource("acme-corp", "tenant-acme-corpse/file.txt"),
		"prefix match must stop at the path boundary")
	assert.False(t, e.CanAccessResource("", "tenant-acme-corp/file.txt"))
}

func TestEnforcer_RequireAccess(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	assert.NoError(t, e.RequireAccess("acme-corp", "tenant-acme-corp/file.txt"))

	err := e.RequireAccess("acme-corp", "tenant-globex/file.txt")
	require.Error(t, err)
	assert.Equal(t, sserr.CodeTenantAccessDenied, sserr.GetCode(err))
	assert.True(t, sserr.IsTenantViolation(err))
}

func TestEnforcer_FilterResources(t *testing.T) {
	t.Parallel()
	e := newMultiTenant(t, nil)

	paths := []string{
		"tenant-acme-corp/a.txt",
		"tenant-globex/b.txt",
		"tenant-acme-corp/sub/c.txt",
		"unprefixed/d.txt",
	}

	got := e.FilterResources("acme-corp", paths)
	assert.Equal(t, []string{
		"tenant-acme-corp/a.txt",
		"tenant-acme-corp/sub/c.txt",
	}, got)

	assert.Empty(t, e.FilterResources("nobody", paths))
}

func TestEnforcer_FilterResources_SingleTenant(t *testing.T) {
	t.Parallel()
	e, err := NewEnforcer(Config{Enabled: false})
	require.NoError(t, err)

	paths := []string{"tenant-a/x", "tenant-b/y"}
	got := e.FilterResources("whoever", paths)
	assert.Equal(t, paths, got)

	// Returned slice is a copy.
	got[0] = "mutated"
	assert.Equal(t, "tenant-a/x", paths[0])
}
