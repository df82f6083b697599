package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biofugitive/fieldcache/internal/engine"
	"github.com/biofugitive/fieldcache/pkg/kv"
)

var testKey = []byte("thisis32byteslongsecretkey123456") // 32 bytes for AES-256

func TestEncryptDecrypt(t *testing.T) {
	plaintext := "Bearer material"

	ciphertext, err := Encrypt(plaintext, testKey)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, testKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWithWrongKey(t *testing.T) {
	ciphertext, err := Encrypt("Secret message", testKey)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, []byte("another32byteslongsecretkey65432"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestInvalidKeySize(t *testing.T) {
	invalidKey := []byte("shortkey")

	_, err := Encrypt("test", invalidKey)
	assert.Error(t, err, "encryption should fail with invalid key size")

	_, err = Decrypt("0123456789abcdef", invalidKey)
	assert.Error(t, err, "decryption should fail with invalid key size")
}

func TestDecryptMalformed(t *testing.T) {
	_, err := Decrypt("not-hex", testKey)
	assert.ErrorIs(t, err, ErrDecrypt)

	// AES-GCM nonce is 12 bytes, so 3 bytes of hex is too short.
	_, err = Decrypt("abcdef", testKey)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert()
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
	assert.NotNil(t, cert.PrivateKey)
}

func TestSealedStore(t *testing.T) {
	ctx := context.Background()
	raw := engine.NewMemStore(nil, nil, nil).Scope("device")

	_, err := Seal(raw, []byte("short"))
	require.Error(t, err)

	sealed, err := Seal(raw, testKey)
	require.NoError(t, err)

	require.NoError(t, sealed.Set(ctx, "@biofugitive_token", "topsecret"))

	got, err := sealed.Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.Equal(t, "topsecret", got)

	// Check that it's encrypted in the underlying store
	stored, err := raw.Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.NotEqual(t, "topsecret", stored)

	// a value written without the vault does not open
	require.NoError(t, raw.Set(ctx, "plain", "hello"))
	_, err = sealed.Get(ctx, "plain")
	assert.ErrorIs(t, err, ErrDecrypt)

	require.NoError(t, sealed.Remove(ctx, "@biofugitive_token"))
	_, err = sealed.Get(ctx, "@biofugitive_token")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}
