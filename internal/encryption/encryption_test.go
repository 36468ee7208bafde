package encryption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecrypt(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	sealed, err := svc.Encrypt([]byte("12 Harbour Road"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "Harbour")

	plain, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "12 Harbour Road", string(plain))

	again, err := svc.Encrypt([]byte("12 Harbour Road"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestNewServiceRejectsBadKeys(t *testing.T) {
	_, err := NewService("not-hex")
	assert.Error(t, err)

	_, err = NewService("0011")
	assert.Error(t, err)

	svc, err := NewService("")
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRotateKeyKeepsOldCiphertexts(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	old, err := svc.Encrypt([]byte("before"))
	require.NoError(t, err)

	require.NoError(t, svc.RotateKey())

	fresh, err := svc.Encrypt([]byte("after"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fresh, "v2:"))

	plain, err := svc.Decrypt(old)
	require.NoError(t, err)
	assert.Equal(t, "before", string(plain))
}

func TestDecryptRejectsGarbage(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	for _, in := range []string{"", "plain text", "vx:AAAA", "v1:%%%", "v1:AAAA"} {
		_, err := svc.Decrypt(in)
		assert.ErrorIs(t, err, ErrMalformedCiphertext, in)
	}

	_, err = svc.Decrypt("v9:AAAAAAAAAAAAAAAAAAAAAAAA")
	assert.ErrorIs(t, err, ErrUnknownKey)

	other, err := NewService("")
	require.NoError(t, err)
	sealed, err := other.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = svc.Decrypt(sealed)
	assert.Error(t, err)
}
