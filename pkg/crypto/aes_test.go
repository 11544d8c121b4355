package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := LoadOrGenerateKey(filepath.Join(t.TempDir(), "sub", "key"))
	require.NoError(t, err)
	c, err := NewCrypter(key)
	require.NoError(t, err)

	enc, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	require.True(t, IsEncrypted(enc))

	again, err := c.Encrypt(enc)
	require.NoError(t, err)
	require.Equal(t, enc, again)

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "s3cret", plain)

	plain, err = c.Decrypt("not-encrypted")
	require.NoError(t, err)
	require.Equal(t, "not-encrypted", plain)
}

func TestLoadOrGenerateKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	k1, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	k2, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestNewCrypterRejectsShortKey(t *testing.T) {
	_, err := NewCrypter([]byte("short"))
	require.Error(t, err)
}
