// Package errors provides standardized error types and error handling utilities
// for the IronBucket platform. It defines common error categories, error codes,
// and helper functions for creating, wrapping, and inspecting errors across all
// platform services.
//
// # Error Categories
//
// The package defines several error categories that map to common failure scenarios:
//
//   - Validation errors: Invalid input, missing required fields
//   - Authentication errors: Malformed, expired, or forged tokens
//   - Tenant errors: Tenant isolation boundary violations
//   - NotFound errors: Resource does not exist
//   - Conflict errors: Resource already exists, version mismatch
//   - Internal errors: Unexpected system failures
//   - Unavailable errors: Service temporarily unavailable
//   - Timeout errors: Operation exceeded time limit
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "AUTH_002") that can be used
// for error tracking, alerting, and client-side error handling. Error codes follow
// the pattern: CATEGORY_XXX where CATEGORY is a short identifier and XXX is a
// numeric code.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeTokenExpired, "token has expired")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternalStore, "revocation check failed")
//
// Check error category:
//
//	if errors.IsTenantViolation(err) {
//	    // record audit event, return 403
//	}
//
// Extract error details for logging:
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Error("authentication failed",
//	        "code", e.Code,
//	        "message", e.Message,
//	    )
//	}
package errors
