package files

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadMasterKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")

	key, err := WriteMasterKey(path)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := ReadMasterKey("", path)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = WriteMasterKey(path)
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestReadMasterKeyPrefersHex(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	got, err := ReadMasterKey(" "+hexKey+"\n", "/does/not/exist")
	require.NoError(t, err)
	want, _ := hex.DecodeString(hexKey)
	assert.Equal(t, want, got)
}

func TestReadMasterKeyErrors(t *testing.T) {
	_, err := ReadMasterKey("", "")
	assert.Error(t, err)

	_, err = ReadMasterKey("", filepath.Join(t.TempDir(), "missing.key"))
	assert.Error(t, err)

	_, err = ReadMasterKey("zz", "")
	assert.ErrorContains(t, err, "hex decode")

	_, err = ReadMasterKey("abcd", "")
	assert.ErrorContains(t, err, "length")
}
