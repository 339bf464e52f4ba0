package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePair(t *testing.T, notBefore, notAfter time.Time) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestTLSConfigLoadsValidPair(t *testing.T) {
	now := time.Now()
	certPath, keyPath := writePair(t, now.Add(-time.Hour), now.Add(24*time.Hour))

	cm := NewCertManager(certPath, keyPath)
	cfg, leaf, err := cm.TLSConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "localhost", leaf.Subject.CommonName)
	assert.False(t, cm.IsExpired(leaf))
	assert.True(t, cm.ExpiresWithin(leaf, 48*time.Hour))
	assert.False(t, cm.ExpiresWithin(leaf, time.Hour))
}

func TestLoadCertificateRefusesExpired(t *testing.T) {
	now := time.Now()
	certPath, keyPath := writePair(t, now.Add(-48*time.Hour), now.Add(-time.Hour))

	_, leaf, err := NewCertManager(certPath, keyPath).LoadCertificate()
	require.ErrorIs(t, err, ErrExpired)
	require.NotNil(t, leaf)
}

func TestLoadCertificateMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, _, err := NewCertManager(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")).LoadCertificate()
	assert.Error(t, err)
}
