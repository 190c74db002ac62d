// Package claims provides type-safe accessors over raw JWT claim maps.
//
// JSON unmarshaling produces weakly-typed values (float64 for all numbers,
// []any for all arrays), and tokens minted by different identity providers
// disagree on claim shapes. The accessors here absorb those differences so
// callers never touch a raw type assertion.
package claims

import (
	"time"
)

// Claims is a raw decoded JWT payload. Accessor methods never panic and
// never mutate the underlying map.
type Claims map[string]any

// Has reports whether the claim is present, regardless of its value or type.
// A claim explicitly set to null is still considered present.
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// GetString returns the claim as a string. The second return value is false
// when the claim is absent or is not a string.
func (c Claims) GetString(name string) (string, bool) {
	v, ok := c[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetStringOr returns the claim as a string, or fallback when the claim is
// absent, not a string, or empty.
func (c Claims) GetStringOr(name, fallback string) string {
	if s, ok := c.GetString(name); ok && s != "" {
		return s
	}
	return fallback
}

// GetStringSlice returns the claim as a slice of strings. A bare string
// value is returned as a single-element slice, matching how RFC 7519
// defines the aud claim. Non-string elements in an array are silently
// dropped. Returns nil when the claim is absent or has an unusable type.
func (c Claims) GetStringSlice(name string) []string {
	v, ok := c[name]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// GetInt64 returns the claim as an int64. JSON numbers arrive as float64;
// json.Number and native integer types are also accepted. The second return
// value is false when the claim is absent or not numeric.
func (c Claims) GetInt64(name string) (int64, bool) {
	v, ok := c[name]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case interface{ Int64() (int64, error) }: // json.Number
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// GetTime returns a numeric-date claim (seconds since the Unix epoch) as a
// time.Time. The second return value is false when the claim is absent or
// not numeric.
func (c Claims) GetTime(name string) (time.Time, bool) {
	n, ok := c.GetInt64(name)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

// GetBool returns the claim as a bool. Providers that emit boolean claims
// as the strings "true"/"false" are accommodated. The second return value
// is false when the claim is absent or has an unusable type.
func (c Claims) GetBool(name string) (bool, bool) {
	v, ok := c[name]
	if !ok {
		return false, false
	}
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch val {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// GetMap returns the claim as a nested object. Returns nil and false when
// the claim is absent or not an object.
func (c Claims) GetMap(name string) (map[string]any, bool) {
	v, ok := c[name]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// MissingOf returns the subset of names that are not present in the claim
// map, preserving the order of names. Returns nil when none are missing.
func (c Claims) MissingOf(names []string) []string {
	var missing []string
	for _, name := range names {
		if !c.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Clone returns a shallow copy of the claim map. Nested objects are shared
// with the original.
func (c Claims) Clone() Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
