package x509x

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSelfSigned(t *testing.T, key PrivateKey) *x509.Certificate {
	template := &x509.Certificate{
		SerialNumber: RandomSerial(),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(randReader, template, template, key.Public(), key)
	require.NoError(t, err)

	cert, err := ParseCertificate(EncodeCertificateToPEM(der))
	require.NoError(t, err)
	return cert
}

func TestParsePrivateKey(t *testing.T) {
	key, err := GenerateRSAKey(1024)
	require.NoError(t, err)

	pkcs1, err := EncodePrivateKeyToPEM(key)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: Pkcs8PrivateKeyPEMBlockType, Bytes: der})

	tests := [...]struct {
		name    string
		pem     []byte
		wantErr bool
	}{
		{`pkcs1`, pkcs1, false},
		{`pkcs8`, pkcs8, false},
		{`garbage`, []byte("hello"), true},
		{`certificate`, EncodeCertificateToPEM([]byte{1}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrivateKey(tt.pem)
			require.Truef(t, (err != nil) == tt.wantErr, "ParsePrivateKey() error = %v, wantErr = %v", err, tt.wantErr)
			if !tt.wantErr {
				require.True(t, key.Equal(got))
			}
		})
	}
}

func TestGenerateRSAKeyTooShort(t *testing.T) {
	_, err := GenerateRSAKey(256)
	require.Error(t, err)
}

func TestModulusAndPairing(t *testing.T) {
	key := mustKey(t)
	other := mustKey(t)
	cert := newSelfSigned(t, key)

	keyModulus, err := Modulus(key.Public())
	require.NoError(t, err)
	certModulus, err := Modulus(cert.PublicKey)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(string(keyModulus), "Modulus="))
	require.Equal(t, keyModulus, certModulus)
	require.True(t, KeyMatchesCertificate(key, cert))
	require.False(t, KeyMatchesCertificate(other, cert))
}

func TestParseCertificateChain(t *testing.T) {
	first := newSelfSigned(t, mustKey(t))
	second := newSelfSigned(t, mustKey(t))

	keyPEM, err := EncodePrivateKeyToPEM(mustKey(t))
	require.NoError(t, err)

	bundle := append(EncodeCertificateToPEM(first.Raw), keyPEM...)
	bundle = append(bundle, EncodeCertificateToPEM(second.Raw)...)

	certs, err := ParseCertificateChain(bundle)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	require.Equal(t, first.Raw, certs[0].Raw)
	require.Equal(t, second.Raw, certs[1].Raw)
}

func mustKey(t *testing.T) PrivateKey {
	key, err := GenerateRSAKey(1024)
	require.NoError(t, err)
	return key
}
