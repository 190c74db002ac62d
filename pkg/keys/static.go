package keys

import (
	"context"
	"strings"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
)

// minHMACKeyLength is the minimum accepted HMAC secret length in bytes.
// Secrets shorter than the hash output size weaken HS256 below its design
// strength.
const minHMACKeyLength = 32

// ---------------------------------------------------------------------------
// StaticHMAC — single shared-secret provider
// ---------------------------------------------------------------------------

// StaticHMAC verifies tokens signed with a single shared HMAC secret. It
// accepts any HS-family algorithm and ignores the token's kid, matching how
// symmetric deployments typically mint tokens without a key identifier.
type StaticHMAC struct {
	secret []byte
}

// NewStaticHMAC creates a StaticHMAC provider. The secret must be at least
// 32 bytes.
func NewStaticHMAC(secret Secret) (*StaticHMAC, error) {
	if len(secret.Value()) < minHMACKeyLength {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"keys: HMAC secret must be at least %d bytes", minHMACKeyLength)
	}
	return &StaticHMAC{secret: []byte(secret.Value())}, nil
}

// VerificationKey returns the shared secret for HS-family algorithms.
func (p *StaticHMAC) VerificationKey(_ context.Context, _, alg string) (any, error) {
	if !strings.HasPrefix(alg, "HS") {
		return nil, sserr.Newf(sserr.CodeUnknownSigningKey,
			"keys: no key available for algorithm %q", alg)
	}
	return p.secret, nil
}

// ---------------------------------------------------------------------------
// Set — static key set keyed by kid
// ---------------------------------------------------------------------------

// Set resolves keys from a fixed map of key identifiers. Use it when key
// material is provisioned out of band rather than fetched from a JWKS
// endpoint. An optional fallback key serves tokens whose header carries no
// kid.
type Set struct {
	keys     map[string]any
	fallback any
}

// NewSet creates a Set from the given kid-to-key map. Key values must be
// []byte (HMAC), *rsa.PublicKey, or *ecdsa.PublicKey; the Set does not
// inspect them. The map is copied.
func NewSet(byKid map[string]any) *Set {
	keys := make(map[string]any, len(byKid))
	for kid, key := range byKid {
		keys[kid] = key
	}
	return &Set{keys: keys}
}

// WithFallback returns a copy of the Set that resolves tokens without a kid
// to the given key.
func (p *Set) WithFallback(key any) *Set {
	keys := make(map[string]any, len(p.keys))
	for kid, k := range p.keys {
		keys[kid] = k
	}
	return &Set{keys: keys, fallback: key}
}

// VerificationKey resolves kid against the set. An empty kid resolves to
// the fallback key when one is configured.
func (p *Set) VerificationKey(_ context.Context, kid, _ string) (any, error) {
	if kid == "" {
		if p.fallback != nil {
			return p.fallback, nil
		}
		return nil, sserr.New(sserr.CodeUnknownSigningKey,
			"keys: token has no key identifier and no fallback key is configured")
	}
	key, ok := p.keys[kid]
	if !ok {
		return nil, sserr.Newf(sserr.CodeUnknownSigningKey,
			"keys: no key found for kid %q", kid)
	}
	return key, nil
}
