package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Roundtrip(t *testing.T) {
	hash, err := HashPassword("s3cret-passphrase", 4)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, CheckPassword("s3cret-passphrase", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestHashFileContent_Deterministic(t *testing.T) {
	a := HashFileContent([]byte("pdf bytes"))
	b := HashFileContent([]byte("pdf bytes"))
	c := HashFileContent([]byte("different bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc.def.ghi", ExtractTokenFromHeader("Bearer abc.def.ghi"))
	assert.Empty(t, ExtractTokenFromHeader(""))
	assert.Empty(t, ExtractTokenFromHeader("Basic abc"))
	assert.Empty(t, ExtractTokenFromHeader("Bearer"))
}

func TestGenerateSecureRandomString(t *testing.T) {
	s, err := GenerateSecureRandomString(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)

	other, err := GenerateSecureRandomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
