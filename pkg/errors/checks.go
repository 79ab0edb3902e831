package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error.
// Returns the Error and true if successful, nil and false otherwise.
// This function traverses the error chain using errors.As.
//
// Example:
//
//	if e, ok := errors.AsError(err); ok {
//	    log.Printf("error code: %s, message: %s", e.Code, e.Message)
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error.
// If the error is not an *Error or is nil, returns an empty string.
//
// Example:
//
//	code := errors.GetCode(err)
//	if code == errors.CodeVerifyStale {
//	    // timestamp outside the window
//	}
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode checks if an error has the specified error code.
// Returns false if the error is nil or not an *Error.
//
// Example:
//
//	if errors.HasCode(err, errors.CodeDecodeLength) {
//	    // handle length violation
//	}
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsValidation checks if the error is a validation error (VAL_xxx).
// Returns true if the error code starts with "VAL".
//
// Example:
//
//	if errors.IsValidation(err) {
//	    // return 400 Bad Request
//	}
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "VAL"
}

// IsDecode checks if the error is a token decode error (DECODE_xxx).
// Returns true if the error code starts with "DECODE".
//
// Example:
//
//	if errors.IsDecode(err) {
//	    // reject with 403, token never reached crypto
//	}
func IsDecode(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "DECODE"
}

// IsVerify checks if the error is a proof verification error (VERIFY_xxx).
// Returns true if the error code starts with "VERIFY".
//
// Example:
//
//	if errors.IsVerify(err) {
//	    // reject with 403, keep the response generic
//	}
func IsVerify(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "VERIFY"
}

// IsProvider checks if the error is a secret provider error (PROVIDER_xxx).
// Returns true if the error code starts with "PROVIDER".
//
// Example:
//
//	if errors.IsProvider(err) {
//	    // return 500, log for the operator
//	}
func IsProvider(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "PROVIDER"
}

// IsInternal checks if the error is an internal error (INT_xxx).
// Returns true if the error code starts with "INT".
//
// Example:
//
//	if errors.IsInternal(err) {
//	    // log error details, return generic message to client
//	}
func IsInternal(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "INT"
}

// IsDeny checks if the error denies the request it was produced for.
// Decode and verify errors deny; provider and internal errors are
// operational failures that also block the request but with a 5xx status.
//
// Example:
//
//	if errors.IsDeny(err) {
//	    // 403 path: the client presented a bad token
//	}
func IsDeny(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "DECODE", "VERIFY":
		return true
	default:
		return false
	}
}

// IsRetryable checks if the error is potentially retryable.
// Provider errors are retryable: the next evaluation fetches again.
// Decode and verify errors are deterministic for a given token and are not.
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    // a later request may succeed without any change
//	}
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Code.Category() == "PROVIDER"
}

// IsClientError checks if the error is a client error (4xx HTTP status).
// Client errors include validation, decode, and verify errors.
//
// Example:
//
//	if errors.IsClientError(err) {
//	    // error is due to the request, not a server issue
//	}
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "VAL", "DECODE", "VERIFY":
		return true
	default:
		return false
	}
}

// IsServerError checks if the error is a server error (5xx HTTP status).
// Server errors include provider and internal errors.
//
// Example:
//
//	if errors.IsServerError(err) {
//	    // error is due to a server issue, may need alerting
//	}
func IsServerError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "PROVIDER", "INT":
		return true
	default:
		return false
	}
}
