package toolkit

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"software.sslmate.com/src/go-pkcs12"

	"hamboard/pkg/helper"
	"hamboard/pkg/helper/x509x"
)

// Native implements the toolkit in process with crypto/x509 and go-pkcs12.
// Files written have the same layout the openssl backend produces.
type Native struct{}

var _ Interface = (*Native)(nil)

func fail(name string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Name: name, Err: err}
}

func (n *Native) GenerateKey(ctx context.Context, keyPath string, bits int) error {
	if err := ctx.Err(); err != nil {
		return fail("genrsa", err)
	}

	key, err := x509x.GenerateRSAKey(bits)
	if err != nil {
		return fail("genrsa", err)
	}

	keyPEM, err := x509x.EncodePrivateKeyToPEM(key)
	if err != nil {
		return fail("genrsa", err)
	}

	return fail("genrsa", os.WriteFile(keyPath, keyPEM, 0600))
}

func readKey(keyPath string) (x509x.PrivateKey, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	return x509x.ParsePrivateKey(data)
}

func readCert(certPath string) (*x509.Certificate, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}

	return x509x.ParseCertificate(data)
}

func readCSR(csrPath string) (*x509.CertificateRequest, error) {
	data, err := os.ReadFile(csrPath)
	if err != nil {
		return nil, err
	}

	return x509x.ParseCSR(data)
}

func (n *Native) CreateCSR(ctx context.Context, keyPath, csrPath string, subject x509x.DN) error {
	if err := ctx.Err(); err != nil {
		return fail("req", err)
	}

	key, err := readKey(keyPath)
	if err != nil {
		return fail("req", err)
	}

	name, err := subject.Name()
	if err != nil {
		return err
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{Subject: name}, key)
	if err != nil {
		return fail("req", err)
	}

	return fail("req", os.WriteFile(csrPath, x509x.EncodeCSRToPEM(der), 0644))
}

func (n *Native) SelfSign(ctx context.Context, keyPath, certPath string, subject x509x.DN, days int) error {
	if err := ctx.Err(); err != nil {
		return fail("req -x509", err)
	}

	key, err := readKey(keyPath)
	if err != nil {
		return fail("req -x509", err)
	}

	name, err := subject.Name()
	if err != nil {
		return err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          x509x.RandomSerial(),
		Subject:               name,
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, days),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return fail("req -x509", err)
	}

	return fail("req -x509", os.WriteFile(certPath, x509x.EncodeCertificateToPEM(der), 0644))
}

func (n *Native) SignCertificate(ctx context.Context, csrPath, certPath string, ca CA, days int, opts ...SignOption) error {
	if err := ctx.Err(); err != nil {
		return fail("x509 -req", err)
	}

	unlock, err := ca.lockSerial(ctx)
	if err != nil {
		return fail("x509 -req", err)
	}
	defer unlock()

	csr, err := readCSR(csrPath)
	if err != nil {
		return fail("x509 -req", err)
	}

	if err := csr.CheckSignature(); err != nil {
		return fail("x509 -req", errors.Wrap(err, "csr signature"))
	}

	caKey, err := readKey(ca.KeyPath)
	if err != nil {
		return fail("x509 -req", err)
	}

	caCert, err := readCert(ca.CertPath)
	if err != nil {
		return fail("x509 -req", err)
	}

	serial, err := nextSerial(ca.SerialPath)
	if err != nil {
		return fail("x509 -req", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		RawSubject:   csr.RawSubject,
		NotBefore:    now,
		NotAfter:     now.AddDate(0, 0, days),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	options := newSignOptions(opts)
	if len(options.hosts) > 0 {
		template.DNSNames, template.IPAddresses = options.split()
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, csr.PublicKey, caKey)
	if err != nil {
		return fail("x509 -req", err)
	}

	return fail("x509 -req", os.WriteFile(certPath, x509x.EncodeCertificateToPEM(der), 0644))
}

// nextSerial read hex serial from file, increment and write it back.
// A missing file starts from a random serial.
func nextSerial(serialPath string) (*big.Int, error) {
	serial := x509x.RandomSerial()

	data, err := os.ReadFile(serialPath)
	switch {
	case err == nil:
		last, ok := new(big.Int).SetString(strings.TrimSpace(string(data)), 16)
		if !ok {
			return nil, errors.Errorf("invalid serial file: %s", serialPath)
		}
		serial = last.Add(last, big.NewInt(1))

	case !os.IsNotExist(err):
		return nil, err
	}

	if err := helper.WriteFileAtomic(serialPath, []byte(strings.ToUpper(serial.Text(16))+"\n"), 0644); err != nil {
		return nil, err
	}

	return serial, nil
}

func (n *Native) PackagePKCS12(ctx context.Context, keyPath, certPath, outPath string) error {
	if err := ctx.Err(); err != nil {
		return fail("pkcs12", err)
	}

	key, err := readKey(keyPath)
	if err != nil {
		return fail("pkcs12", err)
	}

	cert, err := readCert(certPath)
	if err != nil {
		return fail("pkcs12", err)
	}

	data, err := pkcs12.Modern.Encode(key, cert, nil, "")
	if err != nil {
		return fail("pkcs12", err)
	}

	return fail("pkcs12", os.WriteFile(outPath, data, 0600))
}

func (n *Native) KeyModulus(ctx context.Context, keyPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("rsa -modulus", err)
	}

	key, err := readKey(keyPath)
	if err != nil {
		return nil, fail("rsa -modulus", err)
	}

	modulus, err := x509x.Modulus(key.Public())
	return modulus, fail("rsa -modulus", err)
}

func (n *Native) CertModulus(ctx context.Context, certPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("x509 -modulus", err)
	}

	cert, err := readCert(certPath)
	if err != nil {
		return nil, fail("x509 -modulus", err)
	}

	modulus, err := x509x.Modulus(cert.PublicKey)
	return modulus, fail("x509 -modulus", err)
}
