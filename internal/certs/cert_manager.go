package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ErrExpired is returned when the configured certificate is past NotAfter.
var ErrExpired = errors.New("certificate expired")

// CertManager manages the server's TLS key pair.
type CertManager struct {
	certFile string
	keyFile  string
	now      func() time.Time
}

// NewCertManager creates a new CertManager for the given PEM files.
func NewCertManager(certFile, keyFile string) *CertManager {
	return &CertManager{certFile: certFile, keyFile: keyFile, now: time.Now}
}

// LoadCertificate loads the key pair and parses its leaf certificate.
func (cm *CertManager) LoadCertificate() (tls.Certificate, *x509.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(cm.certFile, cm.keyFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("load key pair: %w", err)
	}
	leaf := pair.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("parse certificate: %w", err)
		}
		pair.Leaf = leaf
	}
	if cm.IsExpired(leaf) {
		return tls.Certificate{}, leaf, fmt.Errorf("%w: %s not valid after %s", ErrExpired, cm.certFile, leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	return pair, leaf, nil
}

// IsExpired checks if a certificate is expired.
func (cm *CertManager) IsExpired(cert *x509.Certificate) bool {
	return cert.NotAfter.Before(cm.now())
}

// ExpiresWithin reports whether cert expires within d.
func (cm *CertManager) ExpiresWithin(cert *x509.Certificate, d time.Duration) bool {
	return cert.NotAfter.Before(cm.now().Add(d))
}

// TLSConfig returns a server config serving the loaded pair.
func (cm *CertManager) TLSConfig() (*tls.Config, *x509.Certificate, error) {
	pair, leaf, err := cm.LoadCertificate()
	if err != nil {
		return nil, leaf, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},
	}, leaf, nil
}
