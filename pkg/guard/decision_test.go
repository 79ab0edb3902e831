package guard

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

func TestDecide_Allow_SignedTimestamp(t *testing.T) {
	t.Parallel()

	claim := Claim{Scheme: SchemeSignedTimestamp, Timestamp: 1737312000}
	resp := Decide(SchemeSignedTimestamp, claim, nil)

	assert.True(t, resp.Allow)
	assert.Empty(t, resp.HeadersToAdd)
	assert.Zero(t, resp.Status)
	assert.Nil(t, resp.Body)
	assert.Equal(t, claim, resp.Claim)
}

func TestDecide_Allow_Envelope(t *testing.T) {
	t.Parallel()

	claim := Claim{Scheme: SchemeEncryptedEnvelope, Timestamp: 1737312000, Device: "d1", Data: "x"}
	resp := Decide(SchemeEncryptedEnvelope, claim, nil)

	assert.True(t, resp.Allow)
	assert.Equal(t, map[string]string{
		HeaderValidatedDevice:    "d1",
		HeaderValidatedTimestamp: "1737312000",
	}, resp.HeadersToAdd)
	assert.Equal(t, claim, resp.Claim)
}

func TestDecide_Allow_Envelope_DeviceDefaultsToUnknown(t *testing.T) {
	t.Parallel()

	claim := Claim{Scheme: SchemeEncryptedEnvelope, Timestamp: 1737312000}
	resp := Decide(SchemeEncryptedEnvelope, claim, nil)

	assert.True(t, resp.Allow)
	assert.Equal(t, "unknown", resp.HeadersToAdd[HeaderValidatedDevice])
	assert.Equal(t, "1737312000", resp.HeadersToAdd[HeaderValidatedTimestamp])
}

func TestDecide_Reject_MissingHeaders(t *testing.T) {
	t.Parallel()

	err := tgerr.New(tgerr.CodeDecodeMissingHeader, "guard: missing required header(s)")

	for _, scheme := range []Scheme{SchemeSignedTimestamp, SchemeEncryptedEnvelope} {
		resp := Decide(scheme, Claim{}, err)
		assert.False(t, resp.Allow)
		assert.Equal(t, http.StatusForbidden, resp.Status)
		assert.JSONEq(t, `{"error": "Missing required header(s)"}`, string(resp.Body))
		assert.Empty(t, resp.HeadersToAdd)
		assert.Zero(t, resp.Claim)
	}
}

func TestDecide_Reject_DenyErrors(t *testing.T) {
	t.Parallel()

	denyErrs := []error{
		tgerr.New(tgerr.CodeDecodeMalformed, "guard: envelope has 2 fields, want 3"),
		tgerr.New(tgerr.CodeDecodeEncoding, "guard: nonce is not valid hex"),
		tgerr.New(tgerr.CodeDecodeLength, "guard: tag decoded to 8 bytes, want 16"),
		tgerr.SignatureMismatch("guard: signature verification failed"),
		tgerr.AuthenticationFailed("guard: envelope authentication failed"),
		tgerr.MissingClaim("guard: envelope payload is missing the ts claim"),
		tgerr.StaleTimestamp("guard: token timestamp is outside the accepted window"),
	}

	for _, err := range denyErrs {
		resp := Decide(SchemeSignedTimestamp, Claim{}, err)
		assert.False(t, resp.Allow)
		assert.Equal(t, http.StatusForbidden, resp.Status)
		assert.JSONEq(t, `{"error": "Invalid token"}`, string(resp.Body))

		resp = Decide(SchemeEncryptedEnvelope, Claim{}, err)
		assert.False(t, resp.Allow)
		assert.Equal(t, http.StatusForbidden, resp.Status)
		assert.JSONEq(t, `{"error": "Invalid authentication token"}`, string(resp.Body))
	}
}

func TestDecide_Reject_ProviderAndInternalErrors(t *testing.T) {
	t.Parallel()

	serverErrs := []error{
		tgerr.New(tgerr.CodeProviderUnavailable, "secrets: fetch failed"),
		tgerr.New(tgerr.CodeProviderMalformed, "secrets: field aesKey is not valid hex"),
		tgerr.New(tgerr.CodeProviderNotFound, "secrets: record edge-1 does not exist"),
		tgerr.New(tgerr.CodeInternalCrypto, "guard: AES key is 16 bytes, want 32"),
		errors.New("unclassified failure"),
	}

	for _, err := range serverErrs {
		for _, scheme := range []Scheme{SchemeSignedTimestamp, SchemeEncryptedEnvelope} {
			resp := Decide(scheme, Claim{}, err)
			assert.False(t, resp.Allow)
			assert.Equal(t, http.StatusInternalServerError, resp.Status)
			assert.JSONEq(t, `{"error": "Configuration error"}`, string(resp.Body))
		}
	}
}

func TestDecide_RejectBodyIsValidJSON(t *testing.T) {
	t.Parallel()

	resp := Decide(SchemeSignedTimestamp, Claim{}, tgerr.SignatureMismatch("nope"))
	require.NotEmpty(t, resp.Body)
	assert.Equal(t, `{"error":"Invalid token"}`, string(resp.Body))
}
