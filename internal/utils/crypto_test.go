package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSigningToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := GenerateSigningToken()
		require.NoError(t, err)
		assert.Len(t, token, 43)
		assert.NotContains(t, token, "=")
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestHashToken(t *testing.T) {
	token, err := GenerateSigningToken()
	require.NoError(t, err)

	digest := HashToken(token)
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, HashToken(token))
	assert.NotEqual(t, digest, HashToken(token+"x"))
	assert.NotContains(t, digest, token)
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", SHA256Hex([]byte("abc")))
	assert.Equal(t, SHA256Hex([]byte("abc")), HashString("abc"))
	assert.True(t, ValidateFileHash([]byte("abc"), HashString("abc")))
	assert.False(t, ValidateFileHash([]byte("abd"), HashString("abc")))
}
