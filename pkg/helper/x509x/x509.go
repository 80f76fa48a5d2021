package x509x

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"sort"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
)

const (
	CertificatePEMBlockType     = "CERTIFICATE"
	CsrPEMBlockType             = "CERTIFICATE REQUEST"
	OldCsrPEMBlockType          = "NEW CERTIFICATE REQUEST"
	RsaPrivateKeyPEMBlockType   = "RSA PRIVATE KEY"
	EcdsaPrivateKeyPEMBlockType = "EC PRIVATE KEY"
	Pkcs8PrivateKeyPEMBlockType = "PRIVATE KEY"

	pemPrefix = "-----BEGIN "
)

var (
	pemPrefixCertificate = []byte(pemPrefix + CertificatePEMBlockType)
	pemPrefixCSR         = []byte(pemPrefix + CsrPEMBlockType)
	pemPrefixOldCSR      = []byte(pemPrefix + OldCsrPEMBlockType)
)

var randReader = rand.Reader

// ParseCertificate parse x509 certificate PEM block or DER bytes
func ParseCertificate(certBytes []byte) (*x509.Certificate, error) {
	if bytes.HasPrefix(certBytes, pemPrefixCertificate) {
		p, _ := pem.Decode(certBytes)
		if p == nil {
			return nil, errors.New("invalid PEM")
		}

		certBytes = p.Bytes
	}

	return x509.ParseCertificate(certBytes)
}

// ParseCertificateChain parse concatenated PEM certificates, non certificate blocks are skipped
func ParseCertificateChain(pemBytes []byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0)
	for {
		p, rest := pem.Decode(pemBytes)
		if p == nil {
			return certs, nil
		}
		pemBytes = rest

		if p.Type != CertificatePEMBlockType {
			continue
		}

		cert, err := x509.ParseCertificate(p.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "certificate parse failed")
		}
		certs = append(certs, cert)
	}
}

// ParseCSR parse x509 CSR PEM block
func ParseCSR(csrBytes []byte) (*x509.CertificateRequest, error) {
	if bytes.HasPrefix(csrBytes, pemPrefixCSR) || bytes.HasPrefix(csrBytes, pemPrefixOldCSR) {
		p, _ := pem.Decode(csrBytes)
		if p == nil {
			return nil, errors.New("invalid PEM")
		}

		csrBytes = p.Bytes
	}

	return x509.ParseCertificateRequest(csrBytes)
}

// PrivateKey private key which can sign
type PrivateKey interface {
	crypto.PrivateKey
	crypto.Signer
}

// GenerateRSAKey generate RSA private key of given bit length
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 512 {
		return nil, errors.Errorf("rsa key too short: %d bits", bits)
	}

	return rsa.GenerateKey(randReader, bits)
}

// ParsePrivateKey parse pem formatted private key, PKCS#1, SEC1 and PKCS#8 blocks are supported
func ParsePrivateKey(keyPemBytes []byte) (PrivateKey, error) {
	p, _ := pem.Decode(keyPemBytes)
	if p == nil {
		return nil, errors.New("invalid PEM")
	}

	var key crypto.PrivateKey
	var err error
	switch p.Type {
	case RsaPrivateKeyPEMBlockType:
		key, err = x509.ParsePKCS1PrivateKey(p.Bytes)

	case EcdsaPrivateKeyPEMBlockType:
		key, err = x509.ParseECPrivateKey(p.Bytes)

	case Pkcs8PrivateKeyPEMBlockType:
		key, err = x509.ParsePKCS8PrivateKey(p.Bytes)

	default:
		return nil, errors.Errorf("unknown pem type: %s", p.Type)
	}

	if err != nil {
		return nil, errors.Wrap(err, "fail to parse private key")
	}

	signer, ok := key.(PrivateKey)
	if !ok {
		return nil, errors.Errorf("unsupported private key: %T", key)
	}
	return signer, nil
}

func EncodeCertificateToPEM(derBytes []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  CertificatePEMBlockType,
		Bytes: derBytes,
	})
}

func EncodeCSRToPEM(derBytes []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  CsrPEMBlockType,
		Bytes: derBytes,
	})
}

func EncodePrivateKeyToPEM(privateKey PrivateKey) ([]byte, error) {
	var pemType string
	var keyBytes []byte

	switch key := privateKey.(type) {
	case *rsa.PrivateKey:
		pemType = RsaPrivateKeyPEMBlockType
		keyBytes = x509.MarshalPKCS1PrivateKey(key)
	case *ecdsa.PrivateKey:
		pemType = EcdsaPrivateKeyPEMBlockType
		derBytes, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "fail to encode private key")
		}
		keyBytes = derBytes
	case ed25519.PrivateKey:
		pemType = Pkcs8PrivateKeyPEMBlockType
		derBytes, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "fail to encode private key")
		}
		keyBytes = derBytes
	default:
		return nil, errors.Errorf("unsupported private key: %T", privateKey)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemType,
		Bytes: keyBytes,
	}), nil
}

// Modulus returns RSA modulus in the form `openssl rsa -noout -modulus` prints
func Modulus(pub crypto.PublicKey) ([]byte, error) {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("not a rsa public key: %T", pub)
	}

	return []byte(fmt.Sprintf("Modulus=%X\n", rsaPub.N)), nil
}

// KeyMatchesCertificate returns true if private key is the pair of certificate public key
func KeyMatchesCertificate(key PrivateKey, cert *x509.Certificate) bool {
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}

	return pub.Equal(cert.PublicKey)
}

var (
	keyUsageToStr = map[x509.KeyUsage]string{
		x509.KeyUsageDigitalSignature:  "Digital Signature",
		x509.KeyUsageContentCommitment: "Non Repudiation",
		x509.KeyUsageKeyEncipherment:   "Key Encipherment",
		x509.KeyUsageDataEncipherment:  "Data Encipherment",
		x509.KeyUsageKeyAgreement:      "Key Agreement",
		x509.KeyUsageCertSign:          "Certificate Sign",
		x509.KeyUsageCRLSign:           "CRL Sign",
		x509.KeyUsageEncipherOnly:      "Encipher Only",
		x509.KeyUsageDecipherOnly:      "Decipher Only",
	}
	extKeyUsageToStr = map[x509.ExtKeyUsage]string{
		x509.ExtKeyUsageAny:             "Any",
		x509.ExtKeyUsageServerAuth:      "TLS Web Server Authentication",
		x509.ExtKeyUsageClientAuth:      "TLS Web Client Authentication",
		x509.ExtKeyUsageCodeSigning:     "Code Signing",
		x509.ExtKeyUsageEmailProtection: "Email Protection",
		x509.ExtKeyUsageTimeStamping:    "Time Stamping",
		x509.ExtKeyUsageOCSPSigning:     "OCSP Signing",
	}

	keyUsages []x509.KeyUsage
)

func init() {
	keyUsages = fx.Keys(keyUsageToStr)
	sort.Slice(keyUsages, func(i, j int) bool { return int(keyUsages[i]) < int(keyUsages[j]) })
}

// KeyUsageToStr
func KeyUsageToStr(keyUsage x509.KeyUsage) (usages []string) {
	for _, u := range keyUsages {
		if keyUsage&u > 0 {
			usages = append(usages, keyUsageToStr[u])
		}
	}
	return usages
}

// ExtKeyUsageToStr
func ExtKeyUsageToStr(keyUsage []x509.ExtKeyUsage) (usages []string) {
	for _, u := range keyUsage {
		usages = append(usages, extKeyUsageToStr[u])
	}
	return usages
}

// RandomSerial random 128 bit serial number
func RandomSerial() *big.Int {
	s, _ := rand.Int(randReader, new(big.Int).Lsh(big.NewInt(1), 128))
	return s
}
