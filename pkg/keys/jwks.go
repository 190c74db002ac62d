package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
)

// HTTPClient abstracts the HTTP client used for fetching JWKS documents.
// This allows callers to provide custom HTTP clients with specific
// timeouts, transport settings, or middleware (e.g., for mTLS, proxy
// configuration, or request tracing).
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultJWKSCacheTTL is the default time a fetched JWKS document is cached
// before being refreshed from the endpoint.
const DefaultJWKSCacheTTL = 1 * time.Hour

// ---------------------------------------------------------------------------
// JWKS — remote key set provider with TTL caching
// ---------------------------------------------------------------------------

// JWKS resolves verification keys from a JSON Web Key Set endpoint. Fetched
// keys are cached for a configurable TTL. An unknown kid inside the TTL
// triggers a refetch so freshly rotated keys are picked up without waiting
// for expiry.
//
// JWKS is safe for concurrent use by multiple goroutines.
type JWKS struct {
	url    string
	ttl    time.Duration
	client HTTPClient

	mu        sync.RWMutex
	keys      map[string]any // kid -> *rsa.PublicKey or *ecdsa.PublicKey
	fetchedAt time.Time
}

// NewJWKS creates a JWKS provider for the given endpoint URL. A zero or
// negative ttl uses [DefaultJWKSCacheTTL]. A nil client uses an
// [http.Client] with a 10-second timeout.
func NewJWKS(url string, ttl time.Duration, client HTTPClient) (*JWKS, error) {
	if url == "" {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "keys: JWKS URL must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultJWKSCacheTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKS{
		url:    url,
		ttl:    ttl,
		client: client,
	}, nil
}

// VerificationKey retrieves a public key by key ID (kid) from the JWKS
// endpoint. If the key set is not cached or the cache has expired, it is
// fetched. If the kid is not found in a cached key set, the cache is
// refreshed once to handle key rotation before the kid is reported as
// unknown.
func (p *JWKS) VerificationKey(ctx context.Context, kid, _ string) (any, error) {
	if kid == "" {
		return nil, sserr.New(sserr.CodeUnknownSigningKey,
			"keys: token has no key identifier to resolve against JWKS")
	}

	p.mu.RLock()
	if p.keys != nil && time.Since(p.fetchedAt) < p.ttl {
		key, exists := p.keys[kid]
		p.mu.RUnlock()
		if exists {
			return key, nil
		}
		// Kid not found in cached key set; may be a key rotation, refetch.
	} else {
		p.mu.RUnlock()
	}

	keys, err := p.fetch(ctx)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"keys: failed to fetch JWKS from %s", p.url)
	}

	p.mu.Lock()
	p.keys = keys
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	key, exists := keys[kid]
	if !exists {
		return nil, sserr.Newf(sserr.CodeUnknownSigningKey,
			"keys: kid %q not found in JWKS from %s", kid, p.url)
	}
	return key, nil
}

// jwksResponse represents the JSON structure of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey represents a single key in a JWKS response. Only the fields
// needed for RSA and EC key reconstruction are included.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// fetch makes an HTTP GET request to the JWKS URL, parses the response,
// and constructs a map of key ID to public key. Supports RSA and ECDSA
// (P-256, P-384, P-521) key types.
//
// The response body is limited to 1 MB to prevent resource exhaustion.
func (p *JWKS) fetch(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to create JWKS request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keys: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keys: JWKS endpoint returned status %d", resp.StatusCode)
	}

	// Limit response body to 1 MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("keys: failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("keys: failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]any, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pubKey, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue // Skip malformed keys.
			}
			keys[k.Kid] = pubKey
		case "EC":
			pubKey, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue // Skip malformed keys.
			}
			keys[k.Kid] = pubKey
		}
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to decode RSA exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded x and y coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("keys: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
