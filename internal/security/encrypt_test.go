package security_test

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/security"
)

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("secret"), nil)
	require.NoError(t, err)

	a, err := enc.Encrypt("hello")
	require.NoError(t, err)
	b, err := enc.Encrypt("hello")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per call")

	plain, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestEncryptorReadsLegacyFernet(t *testing.T) {
	var key fernet.Key
	require.NoError(t, key.Generate())

	token, err := fernet.EncryptAndSign([]byte("old message"), &key)
	require.NoError(t, err)

	enc, err := security.NewEncryptor([]byte("new-secret"), []string{key.Encode()})
	require.NoError(t, err)

	plain, err := enc.Decrypt(string(token))
	require.NoError(t, err)
	assert.Equal(t, "old message", plain)

	_, err = enc.Decrypt("garbage")
	assert.Error(t, err)
}

func TestEncryptorRejectsEmptyKey(t *testing.T) {
	_, err := security.NewEncryptor(nil, nil)
	assert.Error(t, err)
}
