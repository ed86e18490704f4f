package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/pcsd/pkg/log"
)

const (
	// CertFile and KeyFile are the node certificate file names inside the cert dir
	CertFile = "pcsd.crt"
	KeyFile  = "pcsd.key"

	nodeKeySize      = 2048
	nodeCertValidity = 10 * 365 * 24 * time.Hour

	// Certificate rotation threshold: rotate when less than 30 days remaining
	certRotationThreshold = 30 * 24 * time.Hour
)

// GenerateNodeCert creates a self-signed server certificate for nodeName.
// Peers do not verify it; it only encrypts the channel.
func GenerateNodeCert(nodeName string, extraNames ...string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, nodeKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate node key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	var (
		dnsNames []string
		ips      []net.IP
	)
	for _, name := range append([]string{nodeName}, extraNames...) {
		if name == "" {
			continue
		}
		if ip := net.ParseIP(name); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, name)
		}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"pcsd"},
			CommonName:   nodeName,
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(nodeCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create node certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// SaveCertToFile writes the certificate and its RSA key into certDir
func SaveCertToFile(cert *tls.Certificate, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(filepath.Join(certDir, CertFile), certPEM, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(filepath.Join(certDir, KeyFile), keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadCertFromFile loads the node certificate from certDir
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(certDir, CertFile), filepath.Join(certDir, KeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = leaf
	}
	return &cert, nil
}

// CertExists checks if both certificate files exist in certDir
func CertExists(certDir string) bool {
	_, err1 := os.Stat(filepath.Join(certDir, CertFile))
	_, err2 := os.Stat(filepath.Join(certDir, KeyFile))
	return err1 == nil && err2 == nil
}

// CertNeedsRotation returns true if the certificate should be rotated
// This happens when less than 30 days remain until expiry
func CertNeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}
	return time.Until(cert.NotAfter) < certRotationThreshold
}

// EnsureNodeCert loads the node certificate from certDir, generating and
// saving a new one when it is missing, unreadable or close to expiry
func EnsureNodeCert(certDir, nodeName string) (*tls.Certificate, error) {
	logger := log.WithComponent("security")

	cert, err := LoadCertFromFile(certDir)
	switch {
	case err == nil && !CertNeedsRotation(cert.Leaf):
		return cert, nil
	case err == nil:
		logger.Info().Time("not_after", cert.Leaf.NotAfter).Msg("node certificate close to expiry, regenerating")
	case CertExists(certDir) || !errors.Is(err, fs.ErrNotExist):
		logger.Warn().Err(err).Str("dir", certDir).Msg("node certificate unreadable, regenerating")
	}

	cert, err = GenerateNodeCert(nodeName)
	if err != nil {
		return nil, err
	}
	if err := SaveCertToFile(cert, certDir); err != nil {
		return nil, err
	}
	logger.Info().Str("node", nodeName).Str("dir", certDir).Msg("generated self-signed node certificate")
	return cert, nil
}

// GetCertInfo returns human-readable information about a certificate
func GetCertInfo(cert *x509.Certificate) map[string]interface{} {
	if cert == nil {
		return map[string]interface{}{"error": "certificate is nil"}
	}

	return map[string]interface{}{
		"subject":       cert.Subject.CommonName,
		"issuer":        cert.Issuer.CommonName,
		"serial_number": cert.SerialNumber.String(),
		"not_before":    cert.NotBefore.Format(time.RFC3339),
		"not_after":     cert.NotAfter.Format(time.RFC3339),
		"dns_names":     cert.DNSNames,
		"self_signed":   cert.Subject.String() == cert.Issuer.String(),
	}
}
