package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., DECODE, VERIFY, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Searchable: Codes can be used to find documentation and solutions
//   - Machine-readable: Suitable for automated error handling
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx      - Validation errors (400 Bad Request)
//	DECODE_xxx   - Token decode errors (403 Forbidden)
//	VERIFY_xxx   - Proof verification errors (403 Forbidden)
//	PROVIDER_xxx - Secret provider errors (500 Internal Server Error)
//	INT_xxx      - Internal errors (500 Internal Server Error)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when configuration or input parameters fail validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside acceptable range.
	CodeValidationRange Code = "VAL_004"

	// Decode errors (DECODE_xxx) - HTTP 403
	// Used when a token fails wire-format parsing. Always client-caused;
	// never produced by secret material or crypto state.

	// CodeDecodeMalformed indicates the token structure is malformed
	// (wrong field count, oversized input).
	CodeDecodeMalformed Code = "DECODE_001"

	// CodeDecodeEncoding indicates a token field is not validly encoded
	// (bad hex, non-decimal timestamp).
	CodeDecodeEncoding Code = "DECODE_002"

	// CodeDecodeLength indicates a decoded token field has the wrong length.
	CodeDecodeLength Code = "DECODE_003"

	// CodeDecodeMissingHeader indicates a required credential header is absent.
	CodeDecodeMissingHeader Code = "DECODE_004"

	// Verify errors (VERIFY_xxx) - HTTP 403
	// Used when a well-formed token fails cryptographic or freshness checks.
	// Caller-facing messages for these stay generic so responses cannot be
	// used as a verification oracle.

	// CodeVerifySignature indicates an HMAC signature mismatch.
	CodeVerifySignature Code = "VERIFY_001"

	// CodeVerifyAuthentication indicates authenticated decryption failed.
	CodeVerifyAuthentication Code = "VERIFY_002"

	// CodeVerifyMissingClaim indicates a decrypted payload lacks a required claim.
	CodeVerifyMissingClaim Code = "VERIFY_003"

	// CodeVerifyStale indicates a timestamp outside the replay tolerance window.
	CodeVerifyStale Code = "VERIFY_004"

	// Provider errors (PROVIDER_xxx) - HTTP 500
	// Used when secret material cannot be obtained or is unusable. These are
	// operator-caused, never client-caused.

	// CodeProviderUnavailable indicates a secret fetch failed.
	CodeProviderUnavailable Code = "PROVIDER_001"

	// CodeProviderMalformed indicates fetched secret material is unusable
	// (missing field, bad encoding, wrong key length).
	CodeProviderMalformed Code = "PROVIDER_002"

	// CodeProviderNotFound indicates the configured secret record does not exist.
	CodeProviderNotFound Code = "PROVIDER_003"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalCrypto indicates a cryptographic primitive could not be
	// initialized (e.g., a cipher rejected its key).
	CodeInternalCrypto Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "DECODE", "VERIFY").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
