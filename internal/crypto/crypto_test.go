package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministicPerLabel(t *testing.T) {
	master := bytes.Repeat([]byte{7}, MasterKeySize)

	a, err := DeriveKey(master, InfoCacheSeal, 32)
	require.NoError(t, err)
	b, err := DeriveKey(master, InfoCacheSeal, 32)
	require.NoError(t, err)
	c, err := DeriveKey(master, InfoCookieBlock, 32)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestDeriveKeyRejectsShortMaster(t *testing.T) {
	_, err := DeriveKey([]byte("short"), InfoCacheSeal, 32)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestCookieKeys(t *testing.T) {
	hashKey, blockKey, err := CookieKeys(MustRandom(MasterKeySize))
	require.NoError(t, err)
	assert.Len(t, hashKey, 64)
	assert.Len(t, blockKey, 32)
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := MustRandom(32)
	plain := []byte(`[{"id":"evt-1","title":"Bins out"}]`)

	blob, err := EncryptAESGCM(key, plain, []byte("list:events:acc-1:u-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "Bins out")

	got, err := DecryptAESGCM(key, blob, []byte("list:events:acc-1:u-1"))
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	_, err = DecryptAESGCM(key, blob, []byte("list:events:acc-2:u-1"))
	assert.Error(t, err, "aad mismatch must fail")

	_, err = DecryptAESGCM(key, blob[:4], nil)
	assert.Error(t, err)

	_, err = EncryptAESGCM([]byte("short"), plain, nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}
