// Package secrets provides the secret-provisioning layer of the Tollgate
// guard: typed secret material with redacted printing, the Provider
// interface the validation engine consumes, and the Source interface that
// remote record backends implement.
//
// Two providers ship with the package. [Static] serves fixed material
// configured at construction; it never performs I/O and suits tests and
// deployments whose keys arrive through the environment. [Cached] fronts a
// remote [Source] with a per-key TTL cache so hot-path evaluations rarely
// wait on I/O:
//
//	src, err := redis.NewClient(ctx, redisCfg)
//	if err != nil { ... }
//
//	cfg := secrets.DefaultCachedConfig()
//	cfg.RecordID = "edge-1"
//	provider, err := secrets.NewCached(cfg, src)
//	if err != nil { ... }
//
//	material, err := provider.Current(ctx, secrets.KeyHMAC)
package secrets

import (
	"context"
	"encoding/hex"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// ---------------------------------------------------------------------------
// Material — secret bytes that redact themselves when printed
// ---------------------------------------------------------------------------

// Material is secret key bytes. It redacts its value in String(),
// GoString(), and MarshalText() to prevent accidental exposure in logs,
// JSON output, or fmt.Printf. The raw bytes are only accessible via the
// [Material.Value] method, which should be called only where the bytes are
// truly needed (e.g., passing to a cryptographic function).
type Material []byte

// materialRedacted is the placeholder text shown instead of the actual
// secret bytes when material is printed, formatted, or serialized.
const materialRedacted = "[REDACTED]"

// String returns the redacted placeholder, preventing the material from
// being printed via fmt.Println, log output, or similar functions.
func (m Material) String() string { return materialRedacted }

// GoString returns the redacted placeholder, preventing the material from
// being printed via fmt.Printf("%#v", material).
func (m Material) GoString() string { return materialRedacted }

// Value returns the actual secret bytes. This is the only way to access
// the underlying value and should be used only where the raw bytes are
// required (e.g., keying an HMAC or initializing a cipher).
func (m Material) Value() []byte { return []byte(m) }

// Len returns the length of the secret bytes. Length is not considered
// sensitive; callers use it for key-size validation.
func (m Material) Len() int { return len(m) }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder. This prevents material from leaking into JSON, YAML, or any
// other text-based serialization format.
func (m Material) MarshalText() ([]byte, error) { return []byte(materialRedacted), nil }

// ---------------------------------------------------------------------------
// Key — names a secret within a provider
// ---------------------------------------------------------------------------

// Key names a secret within a provider. For remote record sources the key
// doubles as the record field name to extract, so the wire field layout is
// configuration rather than engine logic.
type Key string

const (
	// KeyHMAC names the shared secret for the signed-timestamp scheme.
	// Remote records carry it as the "secretKey" field, raw bytes.
	KeyHMAC Key = "secretKey"

	// KeyAES names the AES-256 key for the encrypted-envelope scheme.
	// Remote records carry it as the "aesKey" field, 64 hex characters
	// decoding to exactly 32 bytes.
	KeyAES Key = "aesKey"
)

// ---------------------------------------------------------------------------
// Provider / Source interfaces
// ---------------------------------------------------------------------------

// Provider supplies the current secret material for a key. Implementations
// must be safe for concurrent use; the guard engine calls Current on every
// evaluation.
type Provider interface {
	Current(ctx context.Context, key Key) (Material, error)
}

// Record is one fetched secret record: field name to raw string value, as
// stored in the backend (Redis hash fields, Postgres rows, JSON object
// members).
type Record map[string]string

// Source fetches secret records from a remote backend. Implementations
// return coded errors from pkg/errors: PROVIDER_001 for unreachable
// backends, PROVIDER_003 for records that do not exist.
type Source interface {
	Fetch(ctx context.Context, recordID string) (Record, error)
}

// ---------------------------------------------------------------------------
// FieldSpec — how a record field decodes into material
// ---------------------------------------------------------------------------

// Encoding identifies how a record field's string value turns into
// material bytes.
type Encoding string

const (
	// EncodingRaw uses the field's bytes as-is.
	EncodingRaw Encoding = "raw"

	// EncodingHex hex-decodes the field before use.
	EncodingHex Encoding = "hex"
)

// FieldSpec describes how to decode one record field into material.
type FieldSpec struct {
	// Encoding selects the wire-to-bytes transform. Defaults to raw.
	Encoding Encoding

	// Length is the required decoded byte length. Zero accepts any
	// length.
	Length int
}

// DefaultFieldSpecs returns the built-in decode specs: the HMAC secret is
// the raw field bytes with no length constraint, the AES key is hex
// decoding to exactly 32 bytes.
func DefaultFieldSpecs() map[Key]FieldSpec {
	return map[Key]FieldSpec{
		KeyHMAC: {Encoding: EncodingRaw},
		KeyAES:  {Encoding: EncodingHex, Length: 32},
	}
}

// decodeField turns one record field's raw string value into material
// according to spec. Bad hex and wrong decoded lengths are operator
// errors (the backend holds a malformed record), reported as PROVIDER_002.
func decodeField(key Key, raw string, spec FieldSpec) (Material, error) {
	var b []byte
	switch spec.Encoding {
	case EncodingHex:
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return nil, tgerr.Wrapf(err, tgerr.CodeProviderMalformed,
				"secrets: field %q is not valid hex", key)
		}
		b = decoded
	default:
		b = []byte(raw)
	}

	if spec.Length > 0 && len(b) != spec.Length {
		return nil, tgerr.Newf(tgerr.CodeProviderMalformed,
			"secrets: field %q decoded to %d bytes, want %d", key, len(b), spec.Length).
			WithDetail("field", string(key)).
			WithDetail("expected", spec.Length).
			WithDetail("actual", len(b))
	}

	return Material(b), nil
}
