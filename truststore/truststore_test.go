package truststore

import (
	"context"
	"crypto/x509"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"hamboard/pkg/helper"
	"hamboard/pkg/helper/x509x"
	"hamboard/pkg/testutils"
	"hamboard/toolkit"
)

func forEachBackend(t *testing.T, testfn func(t *testing.T, tk toolkit.Interface)) {
	t.Run(toolkit.BackendNative, func(t *testing.T) { testfn(t, &toolkit.Native{}) })
	t.Run(toolkit.BackendOpenSSL, func(t *testing.T) {
		if _, err := exec.LookPath("openssl"); err != nil {
			t.Skip("openssl not found")
		}
		testfn(t, &toolkit.OpenSSL{Timeout: 30 * time.Second})
	})
}

func newTestManager(t *testing.T, tk toolkit.Interface) *Manager {
	dir := t.TempDir()
	return New(tk, Config{
		Dir:          filepath.Join(dir, "ca"),
		UpstreamRoot: testutils.WriteRootCA(t, dir, "Community Root"),
		Host:         "localhost",
		KeyBits:      1024,
		Days:         30,
	})
}

func readAll(t *testing.T, paths Paths) map[string][]byte {
	files := map[string][]byte{}
	for _, name := range []string{paths.Key, paths.Cert, paths.Trust} {
		files[name] = helper.MustReadFile(name)
	}
	return files
}

func TestEnsure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tk toolkit.Interface) {
		ctx := context.Background()
		m := newTestManager(t, tk)
		require.False(t, m.HasCA(ctx))

		require.NoError(t, m.Ensure(ctx))
		require.True(t, m.HasCA(ctx))

		paths := m.Paths()
		caCert, err := x509x.ParseCertificate(helper.MustReadFile(paths.Cert))
		require.NoError(t, err)
		require.Equal(t, "localhost", caCert.Subject.CommonName)

		// local CA first, then upstream root
		anchor, err := m.TrustAnchor()
		require.NoError(t, err)
		certs, err := x509x.ParseCertificateChain(anchor)
		require.NoError(t, err)
		require.Len(t, certs, 2)
		require.Equal(t, caCert.Raw, certs[0].Raw)
		require.Equal(t, "Community Root", certs[1].Subject.CommonName)

		st, err := os.Stat(paths.Key)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), st.Mode().Perm())

		// no scratch left in CA directory
		entries, err := os.ReadDir(filepath.Dir(paths.Key))
		require.NoError(t, err)
		require.Len(t, entries, 3)
	})
}

func TestEnsureIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tk toolkit.Interface) {
		ctx := context.Background()
		m := newTestManager(t, tk)

		require.NoError(t, m.Ensure(ctx))
		before := readAll(t, m.Paths())

		require.NoError(t, m.Ensure(ctx))
		require.Equal(t, before, readAll(t, m.Paths()))
	})
}

func TestEnsureSelfHealing(t *testing.T) {
	tests := [...]struct {
		name    string
		corrupt func(t *testing.T, m *Manager)
	}{
		{`key deleted`, func(t *testing.T, m *Manager) { require.NoError(t, os.Remove(m.Paths().Key)) }},
		{`cert deleted`, func(t *testing.T, m *Manager) { require.NoError(t, os.Remove(m.Paths().Cert)) }},
		{`foreign certificate`, func(t *testing.T, m *Manager) {
			other := newTestManager(t, &toolkit.Native{})
			require.NoError(t, other.Ensure(context.Background()))
			require.NoError(t, os.WriteFile(m.Paths().Cert, helper.MustReadFile(other.Paths().Cert), 0644))
		}},
		{`garbage key`, func(t *testing.T, m *Manager) { require.NoError(t, os.WriteFile(m.Paths().Key, []byte("garbage"), 0600)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newTestManager(t, &toolkit.Native{})
			require.NoError(t, m.Ensure(ctx))
			before := readAll(t, m.Paths())

			tt.corrupt(t, m)
			require.False(t, m.HasCA(ctx))

			require.NoError(t, m.Ensure(ctx))
			require.True(t, m.HasCA(ctx))

			after := readAll(t, m.Paths())
			require.NotEqual(t, before[m.Paths().Cert], after[m.Paths().Cert])

			certs, err := x509x.ParseCertificateChain(after[m.Paths().Trust])
			require.NoError(t, err)
			require.Equal(t, after[m.Paths().Cert], x509x.EncodeCertificateToPEM(certs[0].Raw))
		})
	}
}

func TestEnsureRecomposeTrust(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &toolkit.Native{})
	require.NoError(t, m.Ensure(ctx))
	cert := helper.MustReadFile(m.Paths().Cert)

	require.NoError(t, os.Remove(m.Paths().Trust))
	require.NoError(t, m.Ensure(ctx))

	require.FileExists(t, m.Paths().Trust)
	require.Equal(t, cert, helper.MustReadFile(m.Paths().Cert))
}

func TestEnsureUpstreamRoot(t *testing.T) {
	tests := [...]struct {
		name     string
		upstream func(t *testing.T, dir string) string
	}{
		{`missing`, func(t *testing.T, dir string) string { return filepath.Join(dir, "missing.pem") }},
		{`not pem`, func(t *testing.T, dir string) string {
			name := filepath.Join(dir, "garbage.pem")
			require.NoError(t, os.WriteFile(name, []byte("garbage"), 0644))
			return name
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m := New(&toolkit.Native{}, Config{
				Dir:          filepath.Join(dir, "ca"),
				UpstreamRoot: tt.upstream(t, dir),
				Host:         "localhost",
				KeyBits:      1024,
				Days:         30,
			})

			err := m.Ensure(context.Background())
			require.ErrorIs(t, err, ErrUpstreamRoot)
			require.NoFileExists(t, m.Paths().Trust)
		})
	}
}

type failingToolkit struct {
	toolkit.Interface
	failKey  bool
	failSign bool
}

func (f *failingToolkit) GenerateKey(ctx context.Context, keyPath string, bits int) error {
	if f.failKey {
		return &toolkit.CommandError{Name: "openssl genrsa", Stderr: []byte("genrsa: Can't open output file"), Err: errors.New("exit status 1")}
	}
	return f.Interface.GenerateKey(ctx, keyPath, bits)
}

func (f *failingToolkit) SelfSign(ctx context.Context, keyPath, certPath string, subject x509x.DN, days int) error {
	if f.failSign {
		// leave a partial certificate behind like an interrupted command would
		if err := os.WriteFile(certPath, []byte("-----BEGIN CERTIFICATE-----\n"), 0644); err != nil {
			return err
		}
		return &toolkit.CommandError{Name: "openssl req", Stderr: []byte("unable to load private key"), Err: errors.New("exit status 1")}
	}
	return f.Interface.SelfSign(ctx, keyPath, certPath, subject, days)
}

func TestEnsureToolkitFailure(t *testing.T) {
	tests := [...]struct {
		name string
		tk   *failingToolkit
	}{
		{`key generation fails`, &failingToolkit{Interface: &toolkit.Native{}, failKey: true}},
		{`self sign fails`, &failingToolkit{Interface: &toolkit.Native{}, failSign: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newTestManager(t, tt.tk)

			err := m.Ensure(ctx)
			require.ErrorIs(t, err, toolkit.ErrCommandFailed)
			require.False(t, m.HasCA(ctx))

			paths := m.Paths()
			require.NoFileExists(t, paths.Key)
			require.NoFileExists(t, paths.Cert)
			require.NoFileExists(t, paths.Trust)

			// no scratch directory left behind
			entries, err := os.ReadDir(filepath.Dir(paths.Key))
			require.NoError(t, err)
			require.Empty(t, entries)

			// recovers once the toolkit works again
			tt.tk.failKey, tt.tk.failSign = false, false
			require.NoError(t, m.Ensure(ctx))
			require.True(t, m.HasCA(ctx))
		})
	}
}

func TestServerCertificate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tk toolkit.Interface) {
		ctx := context.Background()
		m := newTestManager(t, tk)
		require.NoError(t, m.Ensure(ctx))

		cert, err := m.ServerCertificate(ctx, "localhost")
		require.NoError(t, err)

		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		require.NoError(t, err)

		pool, err := m.CertPool()
		require.NoError(t, err)
		_, err = leaf.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"})
		require.NoError(t, err)

		// reused while valid
		again, err := m.ServerCertificate(ctx, "localhost")
		require.NoError(t, err)
		require.Equal(t, cert.Certificate[0], again.Certificate[0])

		// reissued for a new host
		other, err := m.ServerCertificate(ctx, "board.example.org")
		require.NoError(t, err)
		require.NotEqual(t, cert.Certificate[0], other.Certificate[0])
	})
}
