package testutils

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hamboard/pkg/helper/x509x"
)

// WriteRootCA write self-signed CA certificate standing in for the upstream community root
func WriteRootCA(t *testing.T, dir string, commonName string) string {
	key, err := x509x.GenerateRSAKey(1024)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          x509x.RandomSerial(),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)

	name := filepath.Join(dir, "upstream-root.pem")
	require.NoError(t, os.WriteFile(name, x509x.EncodeCertificateToPEM(der), 0644))
	return name
}
