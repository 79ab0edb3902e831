// Package errors provides standardized error types and error handling utilities
// for the Tollgate edge platform. It defines common error categories, error
// codes, and helper functions for creating, wrapping, and inspecting errors
// across the validation engine and its secret backends.
//
// # Error Categories
//
// The package defines the categories a request authenticator deals in:
//
//   - Validation errors: Invalid configuration or input parameters
//   - Decode errors: Token wire format violations (structure, encoding, length)
//   - Verify errors: Cryptographic proof failures, missing claims, stale timestamps
//   - Provider errors: Secret material could not be fetched or is unusable
//   - Internal errors: Unexpected system failures
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "DECODE_001") that can be
// used for error tracking, alerting, and test assertions. Error codes follow
// the pattern: CATEGORY_XXX where CATEGORY is a short identifier and XXX is a
// numeric code.
//
// Decode and verify errors are always client-caused and map to HTTP 403;
// provider and internal errors map to HTTP 500. The caller-facing response
// body is built elsewhere and stays deliberately generic; codes and details
// exist for logs, operators, and tests.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeDecodeMalformed, "token must have three fields")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeProviderUnavailable, "secret fetch failed")
//
// Check error category:
//
//	if errors.IsDecode(err) {
//	    // reject the request
//	}
//
// Extract error details for logging:
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Error("evaluation failed",
//	        "code", e.Code,
//	        "message", e.Message,
//	    )
//	}
package errors
