package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, TENANT, VAL) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Searchable: Codes can be used to find documentation and solutions
//   - Machine-readable: Suitable for automated error handling
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Token/authentication errors (401 Unauthorized)
//	TENANT_xxx  - Tenant isolation violations (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when input or configuration fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// Token and authentication errors (AUTH_xxx) - HTTP 401
	// One code per terminal outcome of the token validation pipeline.

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeTokenExpired indicates the token's exp claim is in the past,
	// beyond the configured clock skew tolerance.
	CodeTokenExpired Code = "AUTH_002"

	// CodeTokenMalformed indicates the token's structure is broken: wrong
	// segment count, an undecodable segment, or a non-object payload.
	CodeTokenMalformed Code = "AUTH_003"

	// CodeSignatureInvalid indicates the cryptographic signature does not
	// verify, or the token uses an algorithm outside the allow-list
	// (including "none").
	CodeSignatureInvalid Code = "AUTH_004"

	// CodeUnknownSigningKey indicates the key material provider could not
	// resolve a verification key for the token's key identifier.
	CodeUnknownSigningKey Code = "AUTH_005"

	// CodeTokenIssuedInFuture indicates the token's iat claim is further in
	// the future than the clock skew tolerance allows.
	CodeTokenIssuedInFuture Code = "AUTH_006"

	// CodeMissingClaims indicates one or more required claims are absent
	// from the token payload. The Details map carries the full list under
	// the "missing" key.
	CodeMissingClaims Code = "AUTH_007"

	// CodeInvalidIssuer indicates the iss claim is not in the configured
	// issuer whitelist.
	CodeInvalidIssuer Code = "AUTH_008"

	// CodeInvalidAudience indicates the token's audience set does not
	// intersect the expected audience set.
	CodeInvalidAudience Code = "AUTH_009"

	// CodeIncompleteIdentity indicates claim normalization produced a
	// record missing required identity fields. The Details map carries the
	// full list under the "missing_fields" key.
	CodeIncompleteIdentity Code = "AUTH_010"

	// CodeTokenRevoked indicates the token's jti claim is on the
	// revocation list.
	CodeTokenRevoked Code = "AUTH_011"

	// Tenant isolation violations (TENANT_xxx) - HTTP 403
	// Kept in their own category so audit logging can flag boundary
	// violations separately from ordinary validation failures.

	// CodeTenantInvalidFormat indicates a tenant identifier does not match
	// the allowed pattern (ASCII letters, digits, hyphen, underscore).
	CodeTenantInvalidFormat Code = "TENANT_001"

	// CodeTenantMismatch indicates the request-supplied tenant and the
	// token-claim tenant disagree while header matching is enforced.
	CodeTenantMismatch Code = "TENANT_002"

	// CodeTenantAccessDenied indicates a resolved tenant attempted to
	// reach a resource scoped to a different tenant.
	CodeTenantAccessDenied Code = "TENANT_003"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundResource indicates the requested resource was not found.
	CodeNotFoundResource Code = "NF_002"

	// Conflict errors (CONF_xxx) - HTTP 409

	// CodeConflict indicates an operation conflicts with current state.
	CodeConflict Code = "CONF_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalStore indicates a backing-store operation failed
	// (revocation list, object storage).
	CodeInternalStore Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutStore indicates a backing-store operation timed out.
	CodeTimeoutStore Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "AUTH",
// "TENANT").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
