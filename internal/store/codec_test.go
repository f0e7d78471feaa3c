package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/store"
)

func TestContentRoundTripSealed(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("test-secret"), nil)
	require.NoError(t, err)

	in := domain.Content{Kind: domain.ContentImage, URL: "https://cdn/x.png", Text: "look", Size: 42}
	sealed, err := store.EncodeContent(enc, in)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "cdn")

	out, err := store.DecodeContent(enc, sealed)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestContentPlainWithoutCipher(t *testing.T) {
	sealed, err := store.EncodeContent(nil, domain.Content{Kind: domain.ContentText, Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"text","text":"hi"}`, sealed)
}

func TestDecodeWithWrongKeyFails(t *testing.T) {
	a, _ := security.NewEncryptor([]byte("key-a"), nil)
	b, _ := security.NewEncryptor([]byte("key-b"), nil)

	sealed, err := store.EncodeContent(a, domain.Content{Kind: domain.ContentText, Text: "secret"})
	require.NoError(t, err)

	_, err = store.DecodeContent(b, sealed)
	assert.Error(t, err)
}

func TestClampPage(t *testing.T) {
	off, lim := store.ClampPage(-3, 0)
	assert.Equal(t, 0, off)
	assert.Equal(t, store.DefaultNotificationPage, lim)

	off, lim = store.ClampPage(10, 20)
	assert.Equal(t, 10, off)
	assert.Equal(t, 20, lim)
}
