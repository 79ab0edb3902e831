// Package guard provides the token validation engine for the Tollgate edge
// platform: request credentials are decoded, verified against provider-held
// secret material, checked for replay, and mapped onto an explicit
// forward-or-reject verdict.
//
// Two token schemes are supported:
//   - Signed timestamp: the client presents a decimal Unix timestamp
//     (X-Bot-Token) and an HMAC-SHA256 proof over it (X-Bot-Signature).
//   - Encrypted envelope: the client presents an AES-256-GCM envelope
//     (X-Auth-Token) whose plaintext is a JSON payload carrying the
//     timestamp and optional device/data fields.
//
// The pipeline is: presence check, decode ([Decode]), secret lookup
// (a [secrets.Provider]), proof verification ([Verify]), replay windowing
// ([CheckReplay]), and decision ([Decide]). [Engine.Evaluate] orchestrates
// all of it; [Middleware] and the gRPC interceptors adapt it to transports.
//
// Security:
//
// Malformed input never causes a panic or a bypass: decoding is total, and
// every failure is classified before the decision step. Signature
// comparison is constant-time, and every envelope decryption failure maps
// to one error so responses cannot be used as an oracle. Deny responses
// carry one generic message per scheme and never reveal which check
// failed.
package guard

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc/metadata"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// ---------------------------------------------------------------------------
// Wire constants
// ---------------------------------------------------------------------------

// Inbound header names carrying request credentials.
const (
	// HeaderBotToken carries the signed-timestamp scheme's decimal Unix
	// timestamp.
	HeaderBotToken = "X-Bot-Token"

	// HeaderBotSignature carries the signed-timestamp scheme's proof:
	// 64 hex characters of HMAC-SHA256 over the timestamp string.
	HeaderBotSignature = "X-Bot-Signature"

	// HeaderAuthToken carries the encrypted-envelope scheme's token:
	// "<nonce_hex>:<ciphertext_hex>:<tag_hex>".
	HeaderAuthToken = "X-Auth-Token"
)

// Outbound header names attached to forwarded requests after a successful
// envelope validation.
const (
	// HeaderValidatedDevice carries the envelope payload's device field,
	// or "unknown" when the payload omits it.
	HeaderValidatedDevice = "X-Validated-Device"

	// HeaderValidatedTimestamp carries the validated token timestamp as
	// a decimal string.
	HeaderValidatedTimestamp = "X-Validated-Timestamp"
)

// Byte sizes of the fixed-length wire fields.
const (
	// NonceSize is the AES-GCM nonce length: 12 bytes, 24 hex characters
	// on the wire.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag length: 16 bytes, 32 hex
	// characters on the wire.
	TagSize = 16

	// signatureSize is the HMAC-SHA256 output length: 32 bytes, 64 hex
	// characters on the wire.
	signatureSize = 32
)

// maxTokenSize is the maximum accepted size for a single credential value
// (8 KB). Larger values are rejected before parsing to prevent resource
// exhaustion.
const maxTokenSize = 8192

// ---------------------------------------------------------------------------
// Scheme — identifies which token scheme a request presents
// ---------------------------------------------------------------------------

// Scheme identifies a token scheme. The scheme union is closed: adding a
// scheme means a new decode branch, a new verify branch, and a reject
// message, so unknown values are rejected rather than defaulted.
type Scheme string

const (
	// SchemeSignedTimestamp is the plaintext-timestamp-plus-HMAC scheme
	// (X-Bot-Token and X-Bot-Signature headers).
	SchemeSignedTimestamp Scheme = "signed-timestamp"

	// SchemeEncryptedEnvelope is the AES-256-GCM envelope scheme
	// (X-Auth-Token header).
	SchemeEncryptedEnvelope Scheme = "encrypted-envelope"
)

// String returns the string representation of the scheme.
func (s Scheme) String() string {
	return string(s)
}

// Valid reports whether the scheme is one of the recognized values.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeSignedTimestamp, SchemeEncryptedEnvelope:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Credentials — raw header values for one request
// ---------------------------------------------------------------------------

// Credentials carries the raw token header values for one request. Values
// are request-scoped: the engine reads them once and never stores them.
type Credentials struct {
	// BotToken is the X-Bot-Token value.
	BotToken string

	// BotSignature is the X-Bot-Signature value.
	BotSignature string

	// AuthToken is the X-Auth-Token value.
	AuthToken string
}

// CredentialsFromHeader extracts the token headers from an HTTP header
// set. Absent headers yield empty strings.
func CredentialsFromHeader(h http.Header) Credentials {
	return Credentials{
		BotToken:     h.Get(HeaderBotToken),
		BotSignature: h.Get(HeaderBotSignature),
		AuthToken:    h.Get(HeaderAuthToken),
	}
}

// CredentialsFromMetadata extracts the token headers from gRPC metadata.
// Metadata keys are matched case-insensitively, so the canonical
// lowercased forms of the header names are found.
func CredentialsFromMetadata(md metadata.MD) Credentials {
	first := func(key string) string {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	return Credentials{
		BotToken:     first(HeaderBotToken),
		BotSignature: first(HeaderBotSignature),
		AuthToken:    first(HeaderAuthToken),
	}
}

// present reports whether every header the scheme requires carries a
// non-empty value.
func (c Credentials) present(scheme Scheme) bool {
	switch scheme {
	case SchemeSignedTimestamp:
		return c.BotToken != "" && c.BotSignature != ""
	case SchemeEncryptedEnvelope:
		return c.AuthToken != ""
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// ParsedToken — structurally valid token, one variant per scheme
// ---------------------------------------------------------------------------

// ParsedToken is a structurally valid token produced by [Decode]. A value
// exists only after every length and encoding constraint holds; malformed
// input yields a decode error, never a partial token. The implementations
// are [SignedTimestamp] and [EncryptedEnvelope].
type ParsedToken interface {
	// Scheme reports which scheme the token belongs to.
	Scheme() Scheme
}

// SignedTimestamp is the parsed form of signed-timestamp credentials.
type SignedTimestamp struct {
	// Timestamp is the original decimal string. It is retained verbatim
	// because it is the exact HMAC input.
	Timestamp string

	// TimestampUnix is Timestamp parsed as a 64-bit Unix time.
	TimestampUnix int64

	// Signature is the 32-byte HMAC-SHA256 proof decoded from hex.
	Signature []byte
}

// Scheme implements [ParsedToken].
func (SignedTimestamp) Scheme() Scheme { return SchemeSignedTimestamp }

// EncryptedEnvelope is the parsed form of encrypted-envelope credentials.
type EncryptedEnvelope struct {
	// Nonce is the 12-byte GCM nonce.
	Nonce []byte

	// Ciphertext is the encrypted payload. It may be empty.
	Ciphertext []byte

	// Tag is the 16-byte GCM authentication tag.
	Tag []byte
}

// Scheme implements [ParsedToken].
func (EncryptedEnvelope) Scheme() Scheme { return SchemeEncryptedEnvelope }

// ---------------------------------------------------------------------------
// Decode — pure, total credential parsing
// ---------------------------------------------------------------------------

// Decode parses the scheme's credentials into a [ParsedToken]. Decoding is
// pure and total: no cryptography, no provider access, and no panics on
// any input. Credential values larger than 8 KB are rejected before any
// parsing.
func Decode(scheme Scheme, creds Credentials) (ParsedToken, error) {
	switch scheme {
	case SchemeSignedTimestamp:
		return decodeSignedTimestamp(creds.BotToken, creds.BotSignature)
	case SchemeEncryptedEnvelope:
		return decodeEnvelope(creds.AuthToken)
	default:
		return nil, tgerr.Newf(tgerr.CodeDecodeMalformed, "guard: unknown scheme %q", scheme)
	}
}

// decodeSignedTimestamp parses the timestamp and signature header values.
// The timestamp must be a decimal 64-bit integer; the signature must be
// exactly 64 hex characters decoding to 32 bytes.
func decodeSignedTimestamp(token, signature string) (ParsedToken, error) {
	if len(token) > maxTokenSize || len(signature) > maxTokenSize {
		return nil, tgerr.New(tgerr.CodeDecodeMalformed, "guard: credential exceeds maximum size")
	}

	ts, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeDecodeEncoding, "guard: timestamp is not a decimal integer")
	}

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeDecodeEncoding, "guard: signature is not valid hex")
	}
	if len(sig) != signatureSize {
		return nil, tgerr.Newf(tgerr.CodeDecodeLength,
			"guard: signature decoded to %d bytes, want %d", len(sig), signatureSize).
			WithDetail("field", "signature").
			WithDetail("expected", signatureSize).
			WithDetail("actual", len(sig))
	}

	return SignedTimestamp{Timestamp: token, TimestampUnix: ts, Signature: sig}, nil
}

// decodeEnvelope parses the colon-delimited envelope value. The split
// must yield exactly three fields; each is hex-decoded independently, the
// nonce must decode to exactly 12 bytes and the tag to exactly 16. The
// ciphertext length is unconstrained and may be zero.
func decodeEnvelope(raw string) (ParsedToken, error) {
	if len(raw) > maxTokenSize {
		return nil, tgerr.New(tgerr.CodeDecodeMalformed, "guard: credential exceeds maximum size")
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return nil, tgerr.Newf(tgerr.CodeDecodeMalformed,
			"guard: envelope has %d fields, want 3", len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeDecodeEncoding, "guard: nonce is not valid hex")
	}
	if len(nonce) != NonceSize {
		return nil, tgerr.Newf(tgerr.CodeDecodeLength,
			"guard: nonce decoded to %d bytes, want %d", len(nonce), NonceSize).
			WithDetail("field", "nonce").
			WithDetail("expected", NonceSize).
			WithDetail("actual", len(nonce))
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeDecodeEncoding, "guard: ciphertext is not valid hex")
	}

	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeDecodeEncoding, "guard: tag is not valid hex")
	}
	if len(tag) != TagSize {
		return nil, tgerr.Newf(tgerr.CodeDecodeLength,
			"guard: tag decoded to %d bytes, want %d", len(tag), TagSize).
			WithDetail("field", "tag").
			WithDetail("expected", TagSize).
			WithDetail("actual", len(tag))
	}

	return EncryptedEnvelope{Nonce: nonce, Ciphertext: ciphertext, Tag: tag}, nil
}
