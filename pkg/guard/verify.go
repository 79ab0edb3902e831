package guard

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

// ---------------------------------------------------------------------------
// Claim — the authenticated facts a verified token establishes
// ---------------------------------------------------------------------------

// Claim carries the authenticated facts extracted from a verified token.
// A Claim exists only after cryptographic verification succeeds; code
// downstream of [Verify] can treat every field as authenticated.
type Claim struct {
	// Scheme is the scheme the token was verified under.
	Scheme Scheme

	// Timestamp is the token's Unix timestamp. For the signed-timestamp
	// scheme it is the signed header value; for the envelope scheme it
	// is the payload's ts field.
	Timestamp int64

	// Device is the envelope payload's device field. Empty for the
	// signed-timestamp scheme or when the payload omits it.
	Device string

	// Data is the envelope payload's data field. Empty for the
	// signed-timestamp scheme or when the payload omits it.
	Data string
}

// DecryptedPayload is the JSON document carried inside an encrypted
// envelope. The timestamp is a pointer so that an absent field is
// distinguishable from a zero value.
type DecryptedPayload struct {
	TS     *int64 `json:"ts"`
	Device string `json:"device,omitempty"`
	Data   string `json:"data,omitempty"`
}

// NewPayload builds an envelope payload with the given timestamp.
func NewPayload(ts int64, device, data string) DecryptedPayload {
	return DecryptedPayload{TS: &ts, Device: device, Data: data}
}

// ---------------------------------------------------------------------------
// Verify — cryptographic proof checking
// ---------------------------------------------------------------------------

// Verify checks the token's cryptographic proof against the secret
// material and extracts the authenticated claim. Verification failures
// report one error per scheme so that responses cannot distinguish a bad
// nonce from a bad key or a tampered ciphertext.
func Verify(token ParsedToken, material secrets.Material) (Claim, error) {
	switch t := token.(type) {
	case SignedTimestamp:
		return verifySignedTimestamp(t, material)
	case EncryptedEnvelope:
		return verifyEnvelope(t, material)
	default:
		return Claim{}, tgerr.Newf(tgerr.CodeInternal, "guard: unsupported token type %T", token)
	}
}

// verifySignedTimestamp recomputes HMAC-SHA256 over the original
// timestamp string and compares it to the presented signature in constant
// time.
func verifySignedTimestamp(token SignedTimestamp, material secrets.Material) (Claim, error) {
	mac := hmac.New(sha256.New, material.Value())
	mac.Write([]byte(token.Timestamp))
	if !hmac.Equal(mac.Sum(nil), token.Signature) {
		return Claim{}, tgerr.SignatureMismatch("guard: signature verification failed")
	}
	return Claim{Scheme: SchemeSignedTimestamp, Timestamp: token.TimestampUnix}, nil
}

// verifyEnvelope decrypts the envelope with AES-256-GCM and extracts the
// payload claim. The wire tag is appended to the ciphertext before
// opening; any authentication failure maps to one error.
func verifyEnvelope(token EncryptedEnvelope, material secrets.Material) (Claim, error) {
	aead, err := newGCM(material)
	if err != nil {
		return Claim{}, err
	}

	sealed := make([]byte, 0, len(token.Ciphertext)+len(token.Tag))
	sealed = append(sealed, token.Ciphertext...)
	sealed = append(sealed, token.Tag...)

	plaintext, err := aead.Open(nil, token.Nonce, sealed, nil)
	if err != nil {
		return Claim{}, tgerr.AuthenticationFailed("guard: envelope authentication failed")
	}

	var payload DecryptedPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Claim{}, tgerr.MissingClaim("guard: envelope payload is not a valid claim document")
	}
	if payload.TS == nil {
		return Claim{}, tgerr.MissingClaim("guard: envelope payload is missing the ts claim")
	}

	return Claim{
		Scheme:    SchemeEncryptedEnvelope,
		Timestamp: *payload.TS,
		Device:    payload.Device,
		Data:      payload.Data,
	}, nil
}

// newGCM builds the AES-256-GCM AEAD for the given key material. The key
// must be exactly 32 bytes.
func newGCM(material secrets.Material) (cipher.AEAD, error) {
	if material.Len() != 32 {
		return nil, tgerr.Newf(tgerr.CodeInternalCrypto,
			"guard: AES key is %d bytes, want 32", material.Len())
	}
	block, err := aes.NewCipher(material.Value())
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeInternalCrypto, "guard: cipher initialization failed")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeInternalCrypto, "guard: GCM initialization failed")
	}
	return aead, nil
}

// ---------------------------------------------------------------------------
// Token producers — the client side of both schemes
// ---------------------------------------------------------------------------

// Seal encrypts a payload into an X-Auth-Token value. It is the inverse
// of the envelope decode-and-verify path and exists for clients, tooling,
// and tests that mint tokens.
func Seal(material secrets.Material, payload DecryptedPayload) (string, error) {
	aead, err := newGCM(material)
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", tgerr.Wrap(err, tgerr.CodeInternal, "guard: payload serialization failed")
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", tgerr.Wrap(err, tgerr.CodeInternalCrypto, "guard: nonce generation failed")
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(ciphertext),
		hex.EncodeToString(tag)), nil
}

// SignTimestamp computes the X-Bot-Signature value for a timestamp
// string: lowercase hex of HMAC-SHA256 over the exact string.
func SignTimestamp(material secrets.Material, timestamp string) string {
	mac := hmac.New(sha256.New, material.Value())
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
