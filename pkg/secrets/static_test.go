package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

func TestStatic_Current_ConfiguredKey(t *testing.T) {
	t.Parallel()
	p := NewStatic(map[Key]Material{
		KeyHMAC: Material("my-secret-key-2024"),
	})

	m, err := p.Current(context.Background(), KeyHMAC)
	require.NoError(t, err)
	assert.Equal(t, []byte("my-secret-key-2024"), m.Value())
}

func TestStatic_Current_BothKeys(t *testing.T) {
	t.Parallel()
	aesKey := make([]byte, 32)
	for i := range aesKey {
		aesKey[i] = byte(i)
	}
	p := NewStatic(map[Key]Material{
		KeyHMAC: Material("my-secret-key-2024"),
		KeyAES:  Material(aesKey),
	})

	hmacMat, err := p.Current(context.Background(), KeyHMAC)
	require.NoError(t, err)
	assert.Equal(t, 18, hmacMat.Len())

	aesMat, err := p.Current(context.Background(), KeyAES)
	require.NoError(t, err)
	assert.Equal(t, 32, aesMat.Len())
}

func TestStatic_Current_UnknownKey(t *testing.T) {
	t.Parallel()
	p := NewStatic(map[Key]Material{
		KeyHMAC: Material("my-secret-key-2024"),
	})

	_, err := p.Current(context.Background(), KeyAES)
	require.Error(t, err)
	assert.Equal(t, tgerr.CodeProviderNotFound, tgerr.GetCode(err))
	assert.True(t, tgerr.IsProvider(err))
}

func TestStatic_Current_EmptyProvider(t *testing.T) {
	t.Parallel()
	p := NewStatic(nil)

	_, err := p.Current(context.Background(), KeyHMAC)
	require.Error(t, err)
	assert.Equal(t, tgerr.CodeProviderNotFound, tgerr.GetCode(err))
}

func TestNewStatic_CopiesMap(t *testing.T) {
	t.Parallel()
	source := map[Key]Material{
		KeyHMAC: Material("original"),
	}
	p := NewStatic(source)

	// Mutating the source map after construction must not affect the
	// provider.
	source[KeyHMAC] = Material("mutated")
	delete(source, KeyHMAC)

	m, err := p.Current(context.Background(), KeyHMAC)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), m.Value())
}
