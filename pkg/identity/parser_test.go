package identity

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
)

// ============================================================
// ParseToken
// ============================================================

func TestParseToken_ValidToken(t *testing.T) {
	t.Parallel()

	claims := idTestBaseClaims()
	claims["tenant"] = "acme-corp"
	raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

	parts, err := ParseToken(raw)
	require.NoError(t, err)

	assert.Equal(t, "HS256", parts.Alg)
	assert.Empty(t, parts.Kid)
	assert.Equal(t, raw, parts.Raw)
	assert.Equal(t, "user-1234", parts.Claims.GetStringOr("sub", ""))
	assert.Equal(t, "acme-corp", parts.Claims.GetStringOr("tenant", ""))
	assert.NotEmpty(t, parts.Signature)

	// The signing string is the wire form of the first two segments.
	segments := strings.Split(raw, ".")
	assert.Equal(t, segments[0]+"."+segments[1], parts.SigningString)
}

func TestParseToken_KidExtracted(t *testing.T) {
	t.Parallel()

	priv, _ := idTestRSAKeyPair(t)
	raw := idTestRSAToken(t, priv, "key-2024", idTestBaseClaims())

	parts, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "RS256", parts.Alg)
	assert.Equal(t, "key-2024", parts.Kid)
}

func TestParseToken_Malformed(t *testing.T) {
	t.Parallel()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u"}`))
	arrayPayload := base64.RawURLEncoding.EncodeToString([]byte(`["not","an","object"]`))

	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{
			name:    "empty token",
			raw:     "",
			wantMsg: "token is empty",
		},
		{
			name:    "one segment",
			raw:     "justonesegment",
			wantMsg: "3 segments",
		},
		{
			name:    "two segments",
			raw:     header + "." + payload,
			wantMsg: "3 segments",
		},
		{
			name:    "four segments",
			raw:     header + "." + payload + ".sig.extra",
			wantMsg: "3 segments",
		},
		{
			name:    "header not base64url",
			raw:     "!!!." + payload + ".c2ln",
			wantMsg: "header is not valid base64url",
		},
		{
			name:    "payload not base64url",
			raw:     header + ".!!!.c2ln",
			wantMsg: "payload is not valid base64url",
		},
		{
			name:    "signature not base64url",
			raw:     header + "." + payload + ".!!!",
			wantMsg: "signature is not valid base64url",
		},
		{
			name:    "header not JSON",
			raw:     base64.RawURLEncoding.EncodeToString([]byte("not json")) + "." + payload + ".c2ln",
			wantMsg: "header is not a JSON object",
		},
		{
			name:    "payload not a JSON object",
			raw:     header + "." + arrayPayload + ".c2ln",
			wantMsg: "payload is not a JSON object",
		},
		{
			name:    "oversized token",
			raw:     header + "." + strings.Repeat("a", maxTokenSize) + ".c2ln",
			wantMsg: "maximum size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parts, err := ParseToken(tt.raw)
			assert.Nil(t, parts)
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, sserr.CodeTokenMalformed),
				"want CodeTokenMalformed, got %v", sserr.GetCode(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseToken_ErrorNeverContainsToken(t *testing.T) {
	t.Parallel()

	// A recognizable token body that must not leak into the error.
	raw := "secret-token-body-AAAA.BBBB"
	_, err := ParseToken(raw)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token-body")
}

func TestParseToken_NoTrustDecisions(t *testing.T) {
	t.Parallel()

	// An unsigned alg=none token parses fine; rejecting it is the
	// validator's job.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u"}`))
	raw := header + "." + payload + "."

	parts, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "none", parts.Alg)
	assert.Empty(t, parts.Signature)
}

func TestParseToken_ExpiredTokenStillParses(t *testing.T) {
	t.Parallel()

	claims := idTestBaseClaims()
	claims["exp"] = 1000 // long past
	raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

	parts, err := ParseToken(raw)
	require.NoError(t, err)
	exp, ok := parts.Claims.GetTime("exp")
	require.True(t, ok)
	assert.Equal(t, int64(1000), exp.Unix())
}

func TestParseToken_UnknownClaimTypesPreserved(t *testing.T) {
	t.Parallel()

	claims := jwt.MapClaims{
		"sub":    "u",
		"nested": map[string]any{"a": []any{"b", 1.0}},
	}
	raw := idTestHMACToken(t, []byte(testHMACSecret), claims)

	parts, err := ParseToken(raw)
	require.NoError(t, err)
	nested, ok := parts.Claims.GetMap("nested")
	require.True(t, ok)
	assert.Contains(t, nested, "a")
}
