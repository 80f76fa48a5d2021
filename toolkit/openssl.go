package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"hamboard/pkg/helper"
	"hamboard/pkg/helper/x509x"
)

// OpenSSL run the openssl command line tool.
// Arguments are passed to the process directly, never through a shell.
type OpenSSL struct {
	Binary  string
	Timeout time.Duration
}

var _ Interface = (*OpenSSL)(nil)

func (o *OpenSSL) binary() string {
	if o.Binary == "" {
		return "openssl"
	}
	return o.Binary
}

func (o *OpenSSL) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := helper.Execute(append([]string{o.binary()}, args...)...).Timeout(o.Timeout).Output(ctx)
	if err != nil {
		cmdErr := &CommandError{Name: "openssl " + args[0], Err: err}

		var execErr *helper.ExecError
		if errors.As(err, &execErr) {
			cmdErr.Stderr = execErr.Stderr
			log.Debugf("openssl %s: %s", args[0], execErr.Stderr)
		}

		return nil, cmdErr
	}

	return out, nil
}

func (o *OpenSSL) GenerateKey(ctx context.Context, keyPath string, bits int) error {
	_, err := o.run(ctx, "genrsa", "-out", keyPath, strconv.Itoa(bits))
	if err != nil {
		return err
	}

	return os.Chmod(keyPath, 0600)
}

func (o *OpenSSL) CreateCSR(ctx context.Context, keyPath, csrPath string, subject x509x.DN) error {
	if _, err := o.req(ctx, csrPath, subject, "-new", "-key", keyPath, "-out", csrPath); err != nil {
		return err
	}

	csr, err := readCSR(csrPath)
	if err != nil {
		return fail("openssl req", err)
	}

	return checkSubject("openssl req", csr.Subject, subject)
}

func (o *OpenSSL) SelfSign(ctx context.Context, keyPath, certPath string, subject x509x.DN, days int) error {
	if _, err := o.req(ctx, certPath, subject, "-new", "-x509", "-key", keyPath, "-out", certPath, "-days", strconv.Itoa(days)); err != nil {
		return err
	}

	cert, err := readCert(certPath)
	if err != nil {
		return fail("openssl req", err)
	}

	return checkSubject("openssl req", cert.Subject, subject)
}

// req run openssl req with a generated configuration next to out.
// openssl silently drops -subj attributes it has no name for, so dotted keys are registered in new_oids first.
func (o *OpenSSL) req(ctx context.Context, out string, subject x509x.DN, args ...string) ([]byte, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	conf, subj := reqConfig(subject)
	confFile := filepath.Join(filepath.Dir(out), filepath.Base(out)+".cnf")
	if err := os.WriteFile(confFile, []byte(conf), 0600); err != nil {
		return nil, errors.Wrap(err, "fail to write openssl config")
	}
	defer os.Remove(confFile)

	args = append([]string{"req", "-config", confFile, "-utf8", "-subj", subj}, args...)
	return o.run(ctx, args...)
}

const reqConfigTemplate = `oid_section = new_oids

[ new_oids ]
%s
[ req ]
distinguished_name = req_distinguished_name
string_mask        = utf8only
x509_extensions    = v3_ca

[ req_distinguished_name ]
commonName = Common Name

[ v3_ca ]
basicConstraints       = critical,CA:true
keyUsage               = critical,keyCertSign,cRLSign
subjectKeyIdentifier   = hash
authorityKeyIdentifier = keyid:always
`

// reqConfig returns openssl req configuration and -subj argument for subject
func reqConfig(subject x509x.DN) (string, string) {
	var oids strings.Builder
	names := map[string]string{}

	rendered := make(x509x.DN, 0, len(subject))
	for _, rdn := range subject {
		key := rdn.Key
		if strings.ContainsRune(key, '.') {
			name, ok := names[key]
			if !ok {
				name = fmt.Sprintf("hamboardAttr%d", len(names)+1)
				names[key] = name
				fmt.Fprintf(&oids, "%s = %s\n", name, key)
			}
			key = name
		}
		rendered = append(rendered, x509x.RDN{Key: key, Value: rdn.Value})
	}

	return fmt.Sprintf(reqConfigTemplate, oids.String()), rendered.String()
}

func (o *OpenSSL) SignCertificate(ctx context.Context, csrPath, certPath string, ca CA, days int, opts ...SignOption) error {
	args := []string{"x509", "-req", "-in", csrPath, "-out", certPath,
		"-CA", ca.CertPath, "-CAkey", ca.KeyPath, "-CAserial", ca.SerialPath, "-CAcreateserial",
		"-days", strconv.Itoa(days)}

	options := newSignOptions(opts)
	if len(options.hosts) > 0 {
		extFile := filepath.Join(filepath.Dir(certPath), filepath.Base(certPath)+".ext")
		ext := fmt.Sprintf("subjectAltName=%s\nextendedKeyUsage=serverAuth\n", options.subjectAltName())
		if err := os.WriteFile(extFile, []byte(ext), 0600); err != nil {
			return errors.Wrap(err, "fail to write extension file")
		}
		defer os.Remove(extFile)

		args = append(args, "-extfile", extFile)
	}

	unlock, err := ca.lockSerial(ctx)
	if err != nil {
		return fail("openssl x509", err)
	}
	defer unlock()

	_, err = o.run(ctx, args...)
	return err
}

func (o *OpenSSL) PackagePKCS12(ctx context.Context, keyPath, certPath, outPath string) error {
	_, err := o.run(ctx, "pkcs12", "-export", "-inkey", keyPath, "-in", certPath, "-out", outPath, "-passout", "pass:")
	return err
}

func (o *OpenSSL) KeyModulus(ctx context.Context, keyPath string) ([]byte, error) {
	return o.run(ctx, "rsa", "-noout", "-modulus", "-in", keyPath)
}

func (o *OpenSSL) CertModulus(ctx context.Context, certPath string) ([]byte, error) {
	return o.run(ctx, "x509", "-noout", "-modulus", "-in", certPath)
}
