package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/hivebff/internal/crypto"
)

// ErrKeyExists is returned by WriteMasterKey when the file is already present.
var ErrKeyExists = errors.New("master key file already exists")

// ReadMasterKey decodes the master key from hexKey, or from the file at path
// when hexKey is empty.
func ReadMasterKey(hexKey, path string) ([]byte, error) {
	h := strings.TrimSpace(hexKey)
	if h == "" {
		if path == "" {
			return nil, errors.New("MASTER_KEY_HEX not set and no master key file configured")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("MASTER_KEY_HEX not set and %s unreadable: %w", path, err)
		}
		h = strings.TrimSpace(string(data))
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != crypto.MasterKeySize {
		return nil, fmt.Errorf("master key length must be %d bytes (hex %d chars)", crypto.MasterKeySize, crypto.MasterKeySize*2)
	}
	return b, nil
}

// WriteMasterKey generates a new master key and writes it hex encoded to
// path with 0600 permissions. It refuses to overwrite an existing file.
func WriteMasterKey(path string) ([]byte, error) {
	if FileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	key := crypto.MustRandom(crypto.MasterKeySize)
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return key, nil
}

// FileExists checks if the given file exists.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
