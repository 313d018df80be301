package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor(t *testing.T) {
	t.Run("generates identity when key is empty", func(t *testing.T) {
		enc, err := NewEncryptor("")
		require.NoError(t, err)
		assert.NotNil(t, enc.identity)
		assert.NotNil(t, enc.recipient)
	})

	t.Run("accepts generated key", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)

		enc, err := NewEncryptor(key)
		require.NoError(t, err)
		assert.NotNil(t, enc)
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := NewEncryptor("invalid-key-format")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "parsing identity")
	})
}

func TestGenerateKey_Unique(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	key2, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2)
	assert.Contains(t, key1, "AGE-SECRET-KEY-")
}

func TestEncrypt_Decrypt(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	plaintext := []byte("check potassium before the second dose")

	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_DifferentOutputEachTime(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	c1, err := enc.Encrypt([]byte("same note"))
	require.NoError(t, err)
	c2, err := enc.Encrypt([]byte("same note"))
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestDecrypt_Failures(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := enc.Decrypt(nil)
		assert.ErrorIs(t, err, ErrEmptyCiphertext)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := enc.Decrypt([]byte("not valid ciphertext"))
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewEncryptor("")
		require.NoError(t, err)

		ciphertext, err := other.Encrypt([]byte("secret"))
		require.NoError(t, err)

		_, err = enc.Decrypt(ciphertext)
		assert.Error(t, err)
	})
}

func TestEncryptString_DecryptString(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	note := "Patient prefers oral route; <b>allergy</b>: penicillin"

	ciphertext, err := enc.EncryptString(note)
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, " ")

	decrypted, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, note, decrypted)

	_, err = enc.DecryptString("not valid base64!!!")
	assert.ErrorContains(t, err, "decoding base64")
}

func TestEncryptor_KeyReuse(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	enc1, err := NewEncryptor(key)
	require.NoError(t, err)
	enc2, err := NewEncryptor(key)
	require.NoError(t, err)

	ciphertext, err := enc1.EncryptString("survives restart")
	require.NoError(t, err)

	plaintext, err := enc2.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", plaintext)
	assert.Equal(t, enc1.PublicKey(), enc2.PublicKey())
	assert.Contains(t, enc1.PublicKey(), "age1")
}
