package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
// Use this for creating errors without an underlying cause.
//
// Example:
//
//	err := errors.New(errors.CodeDecodeMalformed, "token must have three fields")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with the specified code and formatted message.
// Use this for creating errors with dynamic content in the message.
//
// Example:
//
//	err := errors.Newf(errors.CodeProviderNotFound, "secret record %q not found", recordID)
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrap returns nil.
//
// Example:
//
//	record, err := source.Fetch(ctx, recordID)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeProviderUnavailable, "secret fetch failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrapf returns nil.
//
// Example:
//
//	err := errors.Wrapf(err, errors.CodeProviderUnavailable, "fetching record %q", recordID)
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Validation creates a new validation error.
// This is a convenience function equivalent to New(CodeValidation, message).
//
// Example:
//
//	err := errors.Validation("tolerance must not be negative")
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new validation error with a formatted message.
//
// Example:
//
//	err := errors.Validationf("field %q must be at least %d characters", field, minLen)
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Malformed creates a new decode error for structurally invalid tokens.
// This is a convenience function equivalent to New(CodeDecodeMalformed, message).
//
// Example:
//
//	err := errors.Malformed("token must have exactly three colon-delimited fields")
func Malformed(message string) *Error {
	return New(CodeDecodeMalformed, message)
}

// Malformedf creates a new decode error with a formatted message.
//
// Example:
//
//	err := errors.Malformedf("expected 3 fields, got %d", n)
func Malformedf(format string, args ...any) *Error {
	return Newf(CodeDecodeMalformed, format, args...)
}

// SignatureMismatch creates a new verification error for HMAC mismatches.
// Use this when a recomputed signature does not match the presented one.
//
// Example:
//
//	err := errors.SignatureMismatch("signature verification failed")
func SignatureMismatch(message string) *Error {
	return New(CodeVerifySignature, message)
}

// AuthenticationFailed creates a new verification error for failed
// authenticated decryption. One error covers every decryption failure so
// responses cannot distinguish a bad tag from any other cause.
//
// Example:
//
//	err := errors.AuthenticationFailed("token decryption failed")
func AuthenticationFailed(message string) *Error {
	return New(CodeVerifyAuthentication, message)
}

// MissingClaim creates a new verification error for payloads that decrypted
// successfully but lack a required claim.
//
// Example:
//
//	err := errors.MissingClaim("payload has no integer ts field")
func MissingClaim(message string) *Error {
	return New(CodeVerifyMissingClaim, message)
}

// StaleTimestamp creates a new verification error for timestamps outside
// the replay tolerance window.
//
// Example:
//
//	err := errors.StaleTimestamp("timestamp outside tolerance window")
func StaleTimestamp(message string) *Error {
	return New(CodeVerifyStale, message)
}

// Unavailable creates a new provider error.
// Use this when secret material cannot be fetched.
//
// Example:
//
//	err := errors.Unavailable("secret service is unreachable")
func Unavailable(message string) *Error {
	return New(CodeProviderUnavailable, message)
}

// Unavailablef creates a new provider error with a formatted message.
//
// Example:
//
//	err := errors.Unavailablef("secret service returned status %d", resp.StatusCode)
func Unavailablef(format string, args ...any) *Error {
	return Newf(CodeProviderUnavailable, format, args...)
}

// Internal creates a new internal error.
// Use this for unexpected system failures that should not expose details to callers.
//
// Example:
//
//	err := errors.Internal("an unexpected error occurred")
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a new internal error with a formatted message.
// Use this for logging detailed internal errors.
//
// Example:
//
//	err := errors.Internalf("failed to initialize cipher: %v", underlyingErr)
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// FromError converts a standard error to an Error.
// If the error is already an *Error, it is returned as-is.
// Otherwise, it is wrapped as an internal error.
//
// Example:
//
//	tgErr := errors.FromError(err)
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
