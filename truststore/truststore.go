// Package truststore keeps the local certificate authority and the combined trust anchor on disk.
package truststore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"

	"hamboard/pkg/helper"
	"hamboard/pkg/helper/x509x"
	"hamboard/toolkit"
)

var ErrUpstreamRoot = errors.New("invalid upstream root certificate")

const (
	keyFile        = "ca.key"
	certFile       = "ca.crt"
	trustFile      = "trust.pem"
	serialFile     = "ca.srl"
	serverKeyFile  = "server.key"
	serverCertFile = "server.crt"
)

// Config trust store settings
type Config struct {
	Dir          string // directory holding CA artifacts
	UpstreamRoot string // PEM file of the community root, read only
	Host         string // CA and server certificate common name
	KeyBits      int
	Days         int
}

// Paths on-disk artifacts
type Paths struct {
	Key        string
	Cert       string
	Trust      string
	Serial     string
	ServerKey  string
	ServerCert string
}

// Manager owns the CA directory.
// Ensure and ServerCertificate are serialized; there is one writer per directory.
type Manager struct {
	mu     sync.Mutex
	tk     toolkit.Interface
	config Config
	paths  Paths
}

func New(tk toolkit.Interface, config Config) *Manager {
	return &Manager{
		tk:     tk,
		config: config,
		paths: Paths{
			Key:        filepath.Join(config.Dir, keyFile),
			Cert:       filepath.Join(config.Dir, certFile),
			Trust:      filepath.Join(config.Dir, trustFile),
			Serial:     filepath.Join(config.Dir, serialFile),
			ServerKey:  filepath.Join(config.Dir, serverKeyFile),
			ServerCert: filepath.Join(config.Dir, serverCertFile),
		},
	}
}

func (m *Manager) Paths() Paths { return m.paths }

// CA signing material of the local CA
func (m *Manager) CA() toolkit.CA {
	return toolkit.CA{KeyPath: m.paths.Key, CertPath: m.paths.Cert, SerialPath: m.paths.Serial}
}

// HasCA returns true if the CA key and certificate exist and belong together
func (m *Manager) HasCA(ctx context.Context) bool {
	return m.pairMatches(ctx, m.paths.Key, m.paths.Cert)
}

func (m *Manager) pairMatches(ctx context.Context, keyPath, certPath string) bool {
	keyModulus, err := m.tk.KeyModulus(ctx, keyPath)
	if err != nil {
		log.Debugf("key modulus: %v", err)
		return false
	}

	certModulus, err := m.tk.CertModulus(ctx, certPath)
	if err != nil {
		log.Debugf("certificate modulus: %v", err)
		return false
	}

	if !bytes.Equal(keyModulus, certModulus) {
		log.Debugf("modulus mismatch: %s, %s", keyPath, certPath)
		return false
	}

	return true
}

// Ensure make sure a valid CA and trust anchor exist, generating them when they are absent or inconsistent.
// A valid CA is left untouched.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.HasCA(ctx) {
		log.Infof("using existing CA: %s", m.paths.Cert)

		if helper.FileExists(m.paths.Trust) {
			return nil
		}

		return m.composeTrust()
	}

	upstream, err := m.readUpstreamRoot()
	if err != nil {
		return err
	}

	log.Infof("generating CA for %s in %s", m.config.Host, m.config.Dir)
	if err := m.generate(ctx); err != nil {
		return errors.Wrap(err, "fail to generate CA")
	}

	return m.writeTrust(upstream)
}

func (m *Manager) readUpstreamRoot() ([]byte, error) {
	upstream, err := os.ReadFile(m.config.UpstreamRoot)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamRoot, "%v", err)
	}

	certs, err := x509x.ParseCertificateChain(upstream)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamRoot, "%s: %v", m.config.UpstreamRoot, err)
	}

	if len(certs) == 0 {
		return nil, errors.Wrapf(ErrUpstreamRoot, "%s: no certificate", m.config.UpstreamRoot)
	}

	return upstream, nil
}

func (m *Manager) generate(ctx context.Context) error {
	if err := os.MkdirAll(m.config.Dir, 0700); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(m.config.Dir, ".ca-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	keyPath := filepath.Join(scratch, keyFile)
	certPath := filepath.Join(scratch, certFile)

	if err := m.tk.GenerateKey(ctx, keyPath, m.config.KeyBits); err != nil {
		return err
	}

	if err := m.tk.SelfSign(ctx, keyPath, certPath, m.subject(), m.config.Days); err != nil {
		return err
	}

	if err := os.Rename(keyPath, m.paths.Key); err != nil {
		return err
	}

	return os.Rename(certPath, m.paths.Cert)
}

func (m *Manager) subject() x509x.DN { return x509x.DN{{Key: "CN", Value: m.config.Host}} }

func (m *Manager) composeTrust() error {
	upstream, err := m.readUpstreamRoot()
	if err != nil {
		return err
	}

	return m.writeTrust(upstream)
}

// writeTrust trust anchor is the local CA followed by the upstream root
func (m *Manager) writeTrust(upstream []byte) error {
	caPEM, err := os.ReadFile(m.paths.Cert)
	if err != nil {
		return errors.Wrap(err, "fail to read CA certificate")
	}

	var buf bytes.Buffer
	buf.Write(caPEM)
	if len(caPEM) > 0 && caPEM[len(caPEM)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(upstream)

	if err := helper.WriteFileAtomic(m.paths.Trust, buf.Bytes(), 0644); err != nil {
		return errors.Wrap(err, "fail to write trust anchor")
	}

	log.Infof("trust anchor written: %s", m.paths.Trust)
	return nil
}

// TrustAnchor returns trust.pem contents
func (m *Manager) TrustAnchor() ([]byte, error) {
	return os.ReadFile(m.paths.Trust)
}

// CertPool trust anchor as certificate pool
func (m *Manager) CertPool() (*x509.CertPool, error) {
	anchor, err := m.TrustAnchor()
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(anchor) {
		return nil, errors.Errorf("no certificate in %s", m.paths.Trust)
	}

	return pool, nil
}

// ServerCertificate returns the TLS server certificate for host, issued by the local CA.
// Existing server.crt and server.key are reused while they pair, chain to the current CA and are not expired.
func (m *Manager) ServerCertificate(ctx context.Context, hosts ...string) (tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.serverCertValid(ctx, hosts) {
		log.Infof("issuing server certificate for %v", hosts)
		if err := m.issueServerCert(ctx, hosts); err != nil {
			return tls.Certificate{}, errors.Wrap(err, "fail to issue server certificate")
		}
	}

	return tls.LoadX509KeyPair(m.paths.ServerCert, m.paths.ServerKey)
}

func (m *Manager) serverCertValid(ctx context.Context, hosts []string) bool {
	if !m.pairMatches(ctx, m.paths.ServerKey, m.paths.ServerCert) {
		return false
	}

	caCert, err := os.ReadFile(m.paths.Cert)
	if err != nil {
		return false
	}

	serverCert, err := os.ReadFile(m.paths.ServerCert)
	if err != nil {
		return false
	}

	ca, err := x509x.ParseCertificate(caCert)
	if err != nil {
		return false
	}

	cert, err := x509x.ParseCertificate(serverCert)
	if err != nil {
		return false
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)
	if _, err := cert.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: time.Now(),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		log.Debugf("server certificate: %v", err)
		return false
	}

	for _, host := range hosts {
		if err := cert.VerifyHostname(host); err != nil {
			log.Debugf("server certificate: %v", err)
			return false
		}
	}

	return true
}

func (m *Manager) issueServerCert(ctx context.Context, hosts []string) error {
	scratch, err := os.MkdirTemp(m.config.Dir, ".server-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	keyPath := filepath.Join(scratch, serverKeyFile)
	csrPath := filepath.Join(scratch, "server.csr")
	certPath := filepath.Join(scratch, serverCertFile)

	if err := m.tk.GenerateKey(ctx, keyPath, m.config.KeyBits); err != nil {
		return err
	}

	if err := m.tk.CreateCSR(ctx, keyPath, csrPath, m.subject()); err != nil {
		return err
	}

	if err := m.tk.SignCertificate(ctx, csrPath, certPath, m.CA(), m.config.Days, toolkit.WithHosts(hosts...)); err != nil {
		return err
	}

	if err := os.Rename(keyPath, m.paths.ServerKey); err != nil {
		return err
	}

	return os.Rename(certPath, m.paths.ServerCert)
}
