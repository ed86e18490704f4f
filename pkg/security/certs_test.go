package security

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNodeCert(t *testing.T) {
	cert, err := GenerateNodeCert("cat8", "10.0.0.8", "cat8.example.com")
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	assert.Equal(t, "cat8", cert.Leaf.Subject.CommonName)
	assert.Equal(t, []string{"cat8", "cat8.example.com"}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.Equal(t, "10.0.0.8", cert.Leaf.IPAddresses[0].String())
	assert.False(t, CertNeedsRotation(cert.Leaf))
	assert.NoError(t, cert.Leaf.CheckSignature(cert.Leaf.SignatureAlgorithm, cert.Leaf.RawTBSCertificate, cert.Leaf.Signature))
}

func TestSaveLoadCertToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	cert, err := GenerateNodeCert("ace8")
	require.NoError(t, err)
	require.NoError(t, SaveCertToFile(cert, dir))
	assert.True(t, CertExists(dir))

	info, err := os.Stat(filepath.Join(dir, KeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadCertFromFile(dir)
	require.NoError(t, err)
	assert.Equal(t, cert.Leaf.SerialNumber, loaded.Leaf.SerialNumber)
}

func TestEnsureNodeCert(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, CertExists(dir))

	first, err := EnsureNodeCert(dir, "cat8")
	require.NoError(t, err)
	assert.True(t, CertExists(dir))

	second, err := EnsureNodeCert(dir, "cat8")
	require.NoError(t, err)
	assert.Equal(t, first.Leaf.SerialNumber, second.Leaf.SerialNumber, "existing certificate should be reused")
}

func TestEnsureNodeCertReplacesCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CertFile), []byte("garbage"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFile), []byte("garbage"), 0600))

	cert, err := EnsureNodeCert(dir, "cat8")
	require.NoError(t, err)

	_, err = tls.LoadX509KeyPair(filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile))
	assert.NoError(t, err)
	assert.Equal(t, "cat8", cert.Leaf.Subject.CommonName)
}

func TestCertNeedsRotation(t *testing.T) {
	assert.True(t, CertNeedsRotation(nil))

	cert, err := GenerateNodeCert("cat8")
	require.NoError(t, err)
	leaf := *cert.Leaf
	leaf.NotAfter = time.Now().Add(24 * time.Hour)
	assert.True(t, CertNeedsRotation(&leaf))
}

func TestGetCertInfo(t *testing.T) {
	cert, err := GenerateNodeCert("cat8")
	require.NoError(t, err)

	info := GetCertInfo(cert.Leaf)
	assert.Equal(t, "cat8", info["subject"])
	assert.Equal(t, true, info["self_signed"])
	assert.Contains(t, GetCertInfo(nil), "error")
}
