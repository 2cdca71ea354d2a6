package crypto

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestKey(t *testing.T) {
	t.Helper()
	os.Setenv("ENCRYPTION_KEY", "dealdesk-test-key")
	t.Cleanup(func() {
		os.Unsetenv("ENCRYPTION_KEY")
		encryptionKey = nil
	})
	require.NoError(t, InitEncryption())
}

func TestInitEncryption(t *testing.T) {
	t.Run("Should derive a 32-byte key from a raw env string", func(t *testing.T) {
		setupTestKey(t)
		assert.True(t, IsInitialized())
		assert.Len(t, encryptionKey, 32)
	})

	t.Run("Should report uninitialized before setup", func(t *testing.T) {
		encryptionKey = nil
		assert.False(t, IsInitialized())
	})
}

func TestEncryptDecrypt(t *testing.T) {
	setupTestKey(t)

	t.Run("Should round-trip a refresh token", func(t *testing.T) {
		token := "eyJhbGciOiJIUzI1NiJ9.refresh-token-payload"

		ciphertext, err := EncryptToken(token)
		require.NoError(t, err)
		assert.NotEqual(t, token, ciphertext)

		plaintext, err := DecryptToken(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, token, plaintext)
	})

	t.Run("Should produce different ciphertexts for the same plaintext", func(t *testing.T) {
		first, err := Encrypt("same-secret")
		require.NoError(t, err)
		second, err := Encrypt("same-secret")
		require.NoError(t, err)

		// GCM nonce is random per call
		assert.NotEqual(t, first, second)
	})

	t.Run("Should handle empty plaintext", func(t *testing.T) {
		ciphertext, err := Encrypt("")
		require.NoError(t, err)

		plaintext, err := Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "", plaintext)
	})

	t.Run("Should reject tampered ciphertext", func(t *testing.T) {
		ciphertext, err := Encrypt("secret")
		require.NoError(t, err)

		tampered := "A" + ciphertext[1:]
		_, err = Decrypt(tampered)
		assert.Error(t, err)
	})

	t.Run("Should reject ciphertext that is not base64", func(t *testing.T) {
		_, err := Decrypt("not-base64!!!")
		assert.Error(t, err)
	})

	t.Run("Should reject ciphertext shorter than the nonce", func(t *testing.T) {
		_, err := Decrypt("c2hvcnQ=") // "short"
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ciphertext too short")
	})
}

func TestEncryptWithoutInit(t *testing.T) {
	t.Run("Should fail when encryption is not initialized", func(t *testing.T) {
		encryptionKey = nil

		_, err := Encrypt("anything")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "encryption not initialized")

		_, err = Decrypt("anything")
		assert.Error(t, err)
	})
}
