package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF info labels. Changing one invalidates every value sealed under it.
const (
	InfoCookieHash  = "cookie-hash"
	InfoCookieBlock = "cookie-block"
	InfoCacheSeal   = "cache-seal"
)

// MasterKeySize is the length of the master key in bytes.
const MasterKeySize = 32

// ErrInvalidKeyLength is returned when a key has the wrong size.
var ErrInvalidKeyLength = errors.New("invalid key length")

// DeriveKey derives n bytes from the master key using HKDF-SHA256 with the
// given info label.
func DeriveKey(master []byte, info string, n int) ([]byte, error) {
	if len(master) != MasterKeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CookieKeys returns the HMAC (64 byte) and AES (32 byte) keys for the session cookie.
func CookieKeys(master []byte) (hashKey, blockKey []byte, err error) {
	hashKey, err = DeriveKey(master, InfoCookieHash, 64)
	if err != nil {
		return nil, nil, err
	}
	blockKey, err = DeriveKey(master, InfoCookieBlock, 32)
	if err != nil {
		return nil, nil, err
	}
	return hashKey, blockKey, nil
}

// MustRandom returns n random bytes or panics.
func MustRandom(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}
