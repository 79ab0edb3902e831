package guard

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// ---------------------------------------------------------------------------
// Scheme
// ---------------------------------------------------------------------------

func TestScheme_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, SchemeSignedTimestamp.Valid())
	assert.True(t, SchemeEncryptedEnvelope.Valid())
	assert.False(t, Scheme("").Valid())
	assert.False(t, Scheme("jwt").Valid())
}

func TestScheme_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "signed-timestamp", SchemeSignedTimestamp.String())
	assert.Equal(t, "encrypted-envelope", SchemeEncryptedEnvelope.String())
}

// ---------------------------------------------------------------------------
// Credentials extraction
// ---------------------------------------------------------------------------

func TestCredentialsFromHeader(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set(HeaderBotToken, "1737312000")
	h.Set(HeaderBotSignature, "abc123")
	h.Set(HeaderAuthToken, "aa:bb:cc")

	creds := CredentialsFromHeader(h)
	assert.Equal(t, "1737312000", creds.BotToken)
	assert.Equal(t, "abc123", creds.BotSignature)
	assert.Equal(t, "aa:bb:cc", creds.AuthToken)
}

func TestCredentialsFromHeader_AbsentHeaders(t *testing.T) {
	t.Parallel()

	creds := CredentialsFromHeader(http.Header{})
	assert.Empty(t, creds.BotToken)
	assert.Empty(t, creds.BotSignature)
	assert.Empty(t, creds.AuthToken)
}

func TestCredentialsFromMetadata(t *testing.T) {
	t.Parallel()

	md := metadata.Pairs(
		HeaderBotToken, "1737312000",
		HeaderBotSignature, "abc123",
		HeaderAuthToken, "aa:bb:cc",
	)

	creds := CredentialsFromMetadata(md)
	assert.Equal(t, "1737312000", creds.BotToken)
	assert.Equal(t, "abc123", creds.BotSignature)
	assert.Equal(t, "aa:bb:cc", creds.AuthToken)
}

func TestCredentialsFromMetadata_NilMetadata(t *testing.T) {
	t.Parallel()

	creds := CredentialsFromMetadata(nil)
	assert.Empty(t, creds.BotToken)
	assert.Empty(t, creds.BotSignature)
	assert.Empty(t, creds.AuthToken)
}

func TestCredentials_Present(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scheme Scheme
		creds  Credentials
		want   bool
	}{
		{
			name:   "signed timestamp with both headers",
			scheme: SchemeSignedTimestamp,
			creds:  Credentials{BotToken: "1737312000", BotSignature: "ab"},
			want:   true,
		},
		{
			name:   "signed timestamp missing signature",
			scheme: SchemeSignedTimestamp,
			creds:  Credentials{BotToken: "1737312000"},
			want:   false,
		},
		{
			name:   "signed timestamp missing token",
			scheme: SchemeSignedTimestamp,
			creds:  Credentials{BotSignature: "ab"},
			want:   false,
		},
		{
			name:   "signed timestamp ignores auth token",
			scheme: SchemeSignedTimestamp,
			creds:  Credentials{AuthToken: "aa:bb:cc"},
			want:   false,
		},
		{
			name:   "envelope with token",
			scheme: SchemeEncryptedEnvelope,
			creds:  Credentials{AuthToken: "aa:bb:cc"},
			want:   true,
		},
		{
			name:   "envelope missing token",
			scheme: SchemeEncryptedEnvelope,
			creds:  Credentials{BotToken: "1737312000", BotSignature: "ab"},
			want:   false,
		},
		{
			name:   "unknown scheme",
			scheme: Scheme("bogus"),
			creds:  Credentials{BotToken: "1", BotSignature: "ab", AuthToken: "aa:bb:cc"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.creds.present(tt.scheme))
		})
	}
}

// ---------------------------------------------------------------------------
// Decode: signed timestamp
// ---------------------------------------------------------------------------

func TestDecode_SignedTimestamp_Valid(t *testing.T) {
	t.Parallel()

	creds := Credentials{
		BotToken:     "1737312000",
		BotSignature: strings.Repeat("ab", 32),
	}

	token, err := Decode(SchemeSignedTimestamp, creds)
	require.NoError(t, err)

	st, ok := token.(SignedTimestamp)
	require.True(t, ok)
	assert.Equal(t, "1737312000", st.Timestamp)
	assert.Equal(t, int64(1737312000), st.TimestampUnix)
	assert.Len(t, st.Signature, 32)
	assert.Equal(t, SchemeSignedTimestamp, st.Scheme())
}

func TestDecode_SignedTimestamp_NegativeTimestampParses(t *testing.T) {
	t.Parallel()

	creds := Credentials{BotToken: "-5", BotSignature: strings.Repeat("00", 32)}

	token, err := Decode(SchemeSignedTimestamp, creds)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), token.(SignedTimestamp).TimestampUnix)
}

func TestDecode_SignedTimestamp_InvalidTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{name: "non-numeric", token: "not-a-timestamp"},
		{name: "empty", token: ""},
		{name: "float", token: "1737312000.5"},
		{name: "overflow", token: "99999999999999999999999"},
		{name: "hex prefix", token: "0x1234"},
		{name: "trailing garbage", token: "1737312000x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			creds := Credentials{BotToken: tt.token, BotSignature: strings.Repeat("ab", 32)}
			_, err := Decode(SchemeSignedTimestamp, creds)
			require.Error(t, err)
			assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeEncoding))
		})
	}
}

func TestDecode_SignedTimestamp_InvalidSignatureHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		signature string
	}{
		{name: "non-hex characters", signature: strings.Repeat("zz", 32)},
		{name: "literal placeholder string", signature: "invalid-signature-12345"},
		{name: "odd length", signature: "abc"},
		{name: "empty", signature: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			creds := Credentials{BotToken: "1737312000", BotSignature: tt.signature}
			_, err := Decode(SchemeSignedTimestamp, creds)
			require.Error(t, err)
			if tt.signature == "" {
				// Empty decodes to zero bytes and fails the length check.
				assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeLength))
			} else {
				assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeEncoding))
			}
		})
	}
}

func TestDecode_SignedTimestamp_WrongSignatureLength(t *testing.T) {
	t.Parallel()

	creds := Credentials{BotToken: "1737312000", BotSignature: "abcd"}

	_, err := Decode(SchemeSignedTimestamp, creds)
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeLength))

	var tgErr *tgerr.Error
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, "signature", tgErr.Details["field"])
	assert.Equal(t, 32, tgErr.Details["expected"])
	assert.Equal(t, 2, tgErr.Details["actual"])
}

func TestDecode_SignedTimestamp_OversizedCredential(t *testing.T) {
	t.Parallel()

	huge := strings.Repeat("1", maxTokenSize+1)

	_, err := Decode(SchemeSignedTimestamp, Credentials{BotToken: huge, BotSignature: strings.Repeat("ab", 32)})
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeMalformed))

	_, err = Decode(SchemeSignedTimestamp, Credentials{BotToken: "1737312000", BotSignature: huge})
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeMalformed))
}

// ---------------------------------------------------------------------------
// Decode: encrypted envelope
// ---------------------------------------------------------------------------

func TestDecode_Envelope_Valid(t *testing.T) {
	t.Parallel()

	raw := strings.Repeat("ab", NonceSize) + ":deadbeef:" + strings.Repeat("cd", TagSize)

	token, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: raw})
	require.NoError(t, err)

	env, ok := token.(EncryptedEnvelope)
	require.True(t, ok)
	assert.Len(t, env.Nonce, NonceSize)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, env.Ciphertext)
	assert.Len(t, env.Tag, TagSize)
	assert.Equal(t, SchemeEncryptedEnvelope, env.Scheme())
}

func TestDecode_Envelope_EmptyCiphertext(t *testing.T) {
	t.Parallel()

	raw := strings.Repeat("ab", NonceSize) + "::" + strings.Repeat("cd", TagSize)

	token, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: raw})
	require.NoError(t, err)
	assert.Empty(t, token.(EncryptedEnvelope).Ciphertext)
}

func TestDecode_Envelope_WrongFieldCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "two fields", raw: "a:b"},
		{name: "four fields", raw: "a:b:c:d"},
		{name: "one field", raw: "abcdef0123"},
		{name: "empty", raw: ""},
		{name: "only colons", raw: ":::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: tt.raw})
			require.Error(t, err)
			assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeMalformed))
		})
	}
}

func TestDecode_Envelope_InvalidHex(t *testing.T) {
	t.Parallel()

	nonce := strings.Repeat("ab", NonceSize)
	tag := strings.Repeat("cd", TagSize)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "nonce not hex", raw: strings.Repeat("zz", NonceSize) + ":deadbeef:" + tag},
		{name: "ciphertext not hex", raw: nonce + ":nothex:" + tag},
		{name: "ciphertext odd length", raw: nonce + ":abc:" + tag},
		{name: "tag not hex", raw: nonce + ":deadbeef:" + strings.Repeat("zz", TagSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: tt.raw})
			require.Error(t, err)
			assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeEncoding))
		})
	}
}

func TestDecode_Envelope_WrongNonceLength(t *testing.T) {
	t.Parallel()

	raw := "abcdef0123" + ":deadbeef:" + strings.Repeat("cd", TagSize)

	_, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: raw})
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeLength))

	var tgErr *tgerr.Error
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, "nonce", tgErr.Details["field"])
	assert.Equal(t, NonceSize, tgErr.Details["expected"])
	assert.Equal(t, 5, tgErr.Details["actual"])
}

func TestDecode_Envelope_WrongTagLength(t *testing.T) {
	t.Parallel()

	raw := strings.Repeat("ab", NonceSize) + ":deadbeef:" + strings.Repeat("cd", TagSize+1)

	_, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: raw})
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeLength))

	var tgErr *tgerr.Error
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, "tag", tgErr.Details["field"])
	assert.Equal(t, TagSize, tgErr.Details["expected"])
	assert.Equal(t, TagSize+1, tgErr.Details["actual"])
}

func TestDecode_Envelope_OversizedCredential(t *testing.T) {
	t.Parallel()

	raw := strings.Repeat("ab", NonceSize) + ":" + strings.Repeat("ab", maxTokenSize) + ":" + strings.Repeat("cd", TagSize)

	_, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: raw})
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeMalformed))
}

func TestDecode_UnknownScheme(t *testing.T) {
	t.Parallel()

	_, err := Decode(Scheme("bogus"), Credentials{})
	require.Error(t, err)
	assert.True(t, tgerr.HasCode(err, tgerr.CodeDecodeMalformed))
}

func TestDecode_NeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"", ":", "::", ":::", "a", "a:", ":a", "a::", "::a",
		"\x00\x01\x02", strings.Repeat(":", 100),
		"🚀:🚀:🚀", "%zz:%zz:%zz",
	}

	for _, in := range inputs {
		_, err := Decode(SchemeEncryptedEnvelope, Credentials{AuthToken: in})
		assert.Error(t, err)

		_, err = Decode(SchemeSignedTimestamp, Credentials{BotToken: in, BotSignature: in})
		assert.Error(t, err)
	}
}
