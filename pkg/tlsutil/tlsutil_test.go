package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
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

	"github.com/c360/opflow/errors"
)

// writeTestCert writes a self-signed certificate and its key to dir.
func writeTestCert(t *testing.T, dir, cn string) (certFile, keyFile string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"opflow"}, CommonName: cn},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certFile = filepath.Join(dir, cn+".pem")
	keyFile = filepath.Join(dir, cn+"-key.pem")
	require.NoError(t, os.WriteFile(certFile,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile,
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}), 0o600))
	return certFile, keyFile
}

func TestLoadClientConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir, "client")

	t.Run("disabled", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{CAFiles: []string{"/missing.pem"}})
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("additional CA", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{Enabled: true, CAFiles: []string{certFile}})
		require.NoError(t, err)
		require.NotNil(t, cfg.RootCAs)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		assert.Empty(t, cfg.Certificates)
		assert.False(t, cfg.InsecureSkipVerify)
	})

	t.Run("client certificate", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{
			Enabled:    true,
			CertFile:   certFile,
			KeyFile:    keyFile,
			MinVersion: "1.3",
		})
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
		assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	})

	t.Run("insecure", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{Enabled: true, InsecureSkipVerify: true})
		require.NoError(t, err)
		assert.True(t, cfg.InsecureSkipVerify)
	})
}

func TestLoadClientConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writeTestCert(t, dir, "client")
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	tests := []struct {
		name  string
		cfg   ClientConfig
		fatal bool
	}{
		{"missing CA file", ClientConfig{Enabled: true, CAFiles: []string{filepath.Join(dir, "missing.pem")}}, true},
		{"CA without PEM", ClientConfig{Enabled: true, CAFiles: []string{garbage}}, true},
		{"cert without key", ClientConfig{Enabled: true, CertFile: certFile}, false},
		{"key does not match", ClientConfig{Enabled: true, CertFile: certFile, KeyFile: garbage}, true},
		{"unknown version", ClientConfig{Enabled: true, MinVersion: "1.1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClientConfig(tt.cfg)
			require.Error(t, err)
			if tt.fatal {
				assert.True(t, errors.IsFatal(err))
			} else {
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			}
		})
	}
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
}
