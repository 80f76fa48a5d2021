// Package toolkit wraps the certificate operations needed by the trust store and visitor issuance.
package toolkit

import (
	"context"
	"crypto/x509/pkix"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"hamboard/pkg/helper/x509x"
)

const (
	BackendOpenSSL = "openssl"
	BackendNative  = "native"
)

var (
	ErrCommandFailed   = errors.New("toolkit command failed")
	ErrSubjectMismatch = errors.New("subject mismatch")
)

// Interface certificate toolkit.
// All paths are file paths; the caller owns the directories.
type Interface interface {
	GenerateKey(ctx context.Context, keyPath string, bits int) error
	CreateCSR(ctx context.Context, keyPath, csrPath string, subject x509x.DN) error
	SelfSign(ctx context.Context, keyPath, certPath string, subject x509x.DN, days int) error
	SignCertificate(ctx context.Context, csrPath, certPath string, ca CA, days int, opts ...SignOption) error
	PackagePKCS12(ctx context.Context, keyPath, certPath, outPath string) error
	KeyModulus(ctx context.Context, keyPath string) ([]byte, error)
	CertModulus(ctx context.Context, certPath string) ([]byte, error)
}

// CA signing material; SerialPath is created on first signature
type CA struct {
	KeyPath    string
	CertPath   string
	SerialPath string
}

// lockSerial take the file lock next to the serial file.
// Signers in other processes, `hamboard visitor issue` beside a running server, wait on the same lock.
func (ca CA) lockSerial(ctx context.Context) (func(), error) {
	fl := flock.New(ca.SerialPath + ".lock")
	if _, err := fl.TryLockContext(ctx, 20*time.Millisecond); err != nil {
		return nil, errors.Wrap(err, "fail to lock serial")
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			log.Errorf("fail to unlock %s: %v", fl.Path(), err)
		}
	}, nil
}

// SignOption option for SignCertificate
type SignOption func(*signOptions)

type signOptions struct {
	hosts []string
}

// WithHosts issue server certificate for given hosts; ip addresses become IP SANs
func WithHosts(hosts ...string) SignOption {
	return func(o *signOptions) { o.hosts = append(o.hosts, hosts...) }
}

func newSignOptions(opts []SignOption) *signOptions {
	o := &signOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *signOptions) split() (dnsNames []string, ips []net.IP) {
	for _, host := range o.hosts {
		if ip := net.ParseIP(host); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, host)
		}
	}
	return
}

// subjectAltName openssl extension value
func (o *signOptions) subjectAltName() string {
	dnsNames, ips := o.split()
	names := make([]string, 0, len(o.hosts))
	for _, name := range dnsNames {
		names = append(names, "DNS:"+name)
	}
	for _, ip := range ips {
		names = append(names, "IP:"+ip.String())
	}
	return strings.Join(names, ",")
}

// CommandError toolkit operation failed
type CommandError struct {
	Name   string
	Stderr []byte
	Err    error
}

func (e *CommandError) Error() string        { return fmt.Sprintf("%s failed: %v", e.Name, e.Err) }
func (e *CommandError) Unwrap() error        { return e.Err }
func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }

// checkSubject the subject written by a command must carry every requested attribute in order
func checkSubject(name string, got pkix.Name, want x509x.DN) error {
	if gotDN := x509x.FromName(got); gotDN.String() != want.String() {
		return &CommandError{Name: name, Err: errors.Wrapf(ErrSubjectMismatch, "got %q, want %q", gotDN, want)}
	}
	return nil
}

// New create toolkit backend
func New(backend string, binary string, timeout time.Duration) (Interface, error) {
	switch backend {
	case BackendOpenSSL, "":
		return &OpenSSL{Binary: binary, Timeout: timeout}, nil
	case BackendNative:
		return &Native{}, nil
	}

	return nil, errors.Errorf("unsupported toolkit backend: %s", backend)
}
