package board

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"hamboard/board/store"
	"hamboard/board/types"
	"hamboard/pkg/helper"
	"hamboard/pkg/testutils"
	"hamboard/toolkit"
	"hamboard/truststore"
	"hamboard/visitor"
)

const testDN = "/1.3.6.1.4.1.12348.1.1=N0CALL/CN=Jane Doe/emailAddress=jane@example.com"

type testEnv struct {
	manager *truststore.Manager
	issuer  *visitor.Issuer
	store   store.Interface
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	tk := &toolkit.Native{}

	manager := truststore.New(tk, truststore.Config{
		Dir:          filepath.Join(dir, "ca"),
		UpstreamRoot: testutils.WriteRootCA(t, dir, "Community Root"),
		Host:         "localhost",
		KeyBits:      1024,
		Days:         30,
	})
	require.NoError(t, manager.Ensure(context.Background()))

	s, err := store.NewSQLStore("sqlite://" + filepath.Join(dir, "board.db"))
	require.NoError(t, err)

	return &testEnv{
		manager: manager,
		issuer: visitor.New(tk, manager.CA(), visitor.Config{
			Callsign:   "FAKE",
			Email:      "visitor@example.invalid",
			Days:       7,
			KeyBits:    1024,
			ScratchDir: dir,
			Timeout:    10 * time.Second,
		}),
		store: s,
	}
}

func newTestServer(t *testing.T, env *testEnv, issuer Issuer, opts Options) *httptest.Server {
	if issuer == nil {
		issuer = env.issuer
	}

	ts := httptest.NewServer(testutils.NewEndpointHandler(New(env.store, issuer, env.manager, opts)))
	t.Cleanup(ts.Close)
	return ts
}

var noRedirect = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse },
}

func readBody(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)
	query := newTestServer(t, env, nil, Options{TrustQueryDN: true})
	strict := newTestServer(t, env, nil, Options{})

	type args struct {
		server *httptest.Server
		dn     string
	}
	tests := [...]struct {
		name        string
		args        args
		wantContain []string
		wantMissing []string
	}{
		{`anonymous`, args{query, ""}, []string{`href="/visitor"`}, []string{"Hello"}},
		{`dn query`, args{query, testDN}, []string{"Hello Jane Doe, your call sign is N0CALL", `mailto:jane@example.com`}, nil},
		{`dn query not trusted`, args{strict, testDN}, []string{`href="/visitor"`}, []string{"Hello"}},
		{`missing field is anonymous`, args{query, "/CN=Jane Doe/emailAddress=jane@example.com"}, []string{`href="/visitor"`}, []string{"Hello", "missing"}},
		{`malformed is anonymous`, args{query, "/garbage"}, []string{`href="/visitor"`}, []string{"Hello", "malformed"}},
		{`escaped`, args{query, "/1.3.6.1.4.1.12348.1.1=N0CALL/CN=<img src=x onerror=alert(1)>/emailAddress=a@b.c"}, []string{"Hello &lt;img src=x onerror=alert(1)&gt;"}, []string{"<img"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.args.server.URL + "/"
			if tt.args.dn != "" {
				u += "?" + url.Values{"dn": {tt.args.dn}}.Encode()
			}

			resp, err := http.Get(u)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

			body := readBody(t, resp)
			for _, s := range tt.wantContain {
				require.Contains(t, body, s)
			}
			for _, s := range tt.wantMissing {
				require.NotContains(t, body, s)
			}
		})
	}
}

func TestPostMessage(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, nil, Options{TrustQueryDN: true})

	type args struct {
		dn      string
		content string
	}
	tests := [...]struct {
		name     string
		args     args
		wantCode int
	}{
		{`anonymous`, args{"", "hello"}, http.StatusUnauthorized},
		{`member`, args{testDN, "CQ CQ de N0CALL <b>"}, http.StatusSeeOther},
		{`empty`, args{testDN, ""}, http.StatusBadRequest},
		{`too long`, args{testDN, strings.Repeat("x", types.MaxContentLength+1)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ts.URL + "/messages"
			if tt.args.dn != "" {
				u += "?" + url.Values{"dn": {tt.args.dn}}.Encode()
			}

			resp, err := noRedirect.PostForm(u, url.Values{"content": {tt.args.content}})
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.wantCode, resp.StatusCode)

			if tt.wantCode == http.StatusSeeOther {
				require.Equal(t, "/", resp.Header.Get("Location"))
			}
		})
	}

	resp, err := http.Get(ts.URL + "/messages?author=N0CALL")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []*types.Message
	require.NoError(t, helper.ReadJSON(resp.Body, &messages))
	resp.Body.Close()
	require.Len(t, messages, 1)
	require.Equal(t, "N0CALL", messages[0].Author)
	require.Equal(t, "CQ CQ de N0CALL <b>", messages[0].Content)

	resp, err = http.Get(ts.URL + "/messages/" + messages[0].ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	require.Contains(t, readBody(t, resp), "CQ CQ de N0CALL &lt;b&gt;")
}

func TestGetMessageNotFound(t *testing.T) {
	ts := newTestServer(t, newTestEnv(t), nil, Options{})

	resp, err := http.Get(ts.URL + "/messages/not-exists")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVisitorForm(t *testing.T) {
	ts := newTestServer(t, newTestEnv(t), nil, Options{})

	resp, err := http.Get(ts.URL + "/visitor")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), `name="nickname"`)
}

type failingIssuer struct{}

func (failingIssuer) Issue(ctx context.Context, nickname string) ([]byte, error) {
	cause := &toolkit.CommandError{Name: "openssl x509", Stderr: []byte("unable to load CA private key /secret/ca.key"), Err: errors.New("exit status 1")}
	return nil, errors.Wrapf(visitor.ErrIssuance, "sign: %v", cause)
}

func TestIssueVisitor(t *testing.T) {
	env := newTestEnv(t)

	type args struct {
		issuer   Issuer
		nickname string
	}
	tests := [...]struct {
		name        string
		args        args
		wantCode    int
		wantMessage string
	}{
		{`valid`, args{nil, "Alice"}, http.StatusOK, ""},
		{`invalid nickname`, args{nil, "Alice/CN=admin"}, http.StatusBadRequest, "invalid nickname"},
		{`empty nickname`, args{nil, ""}, http.StatusBadRequest, "invalid nickname"},
		{`issuance failed`, args{failingIssuer{}, "Alice"}, http.StatusInternalServerError, "certificate issuance failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, env, tt.args.issuer, Options{})

			resp, err := http.PostForm(ts.URL+"/visitor", url.Values{"nickname": {tt.args.nickname}})
			require.NoError(t, err)
			require.Equal(t, tt.wantCode, resp.StatusCode)
			body := readBody(t, resp)

			if tt.wantCode != http.StatusOK {
				require.Contains(t, body, tt.wantMessage)
				require.NotContains(t, body, "ca.key")
				require.NotContains(t, body, "exit status")
				return
			}

			require.Equal(t, "application/x-pkcs12", resp.Header.Get("Content-Type"))
			require.Equal(t, `attachment; filename="client.p12"`, resp.Header.Get("Content-Disposition"))

			_, cert, _, err := pkcs12.DecodeChain([]byte(body), "")
			require.NoError(t, err)
			require.Equal(t, "Alice (Visitor)", cert.Subject.CommonName)
		})
	}
}

func TestTrustAnchor(t *testing.T) {
	env := newTestEnv(t)
	ts := newTestServer(t, env, nil, Options{})

	resp, err := http.Get(ts.URL + "/ca.pem")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-pem-file", resp.Header.Get("Content-Type"))

	want, err := env.manager.TrustAnchor()
	require.NoError(t, err)
	require.Equal(t, string(want), readBody(t, resp))
}

func TestClientCertificate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	serverCert, err := env.manager.ServerCertificate(ctx, "localhost", "127.0.0.1")
	require.NoError(t, err)
	pool, err := env.manager.CertPool()
	require.NoError(t, err)

	// query dn must not override the certificate identity
	ts := httptest.NewUnstartedServer(testutils.NewEndpointHandler(New(env.store, env.issuer, env.manager, Options{TrustQueryDN: true})))
	ts.TLS = &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}
	ts.StartTLS()
	defer ts.Close()

	p12, err := env.issuer.Issue(ctx, "Alice")
	require.NoError(t, err)
	key, cert, _, err := pkcs12.DecodeChain(p12, "")
	require.NoError(t, err)

	anchor, err := env.manager.TrustAnchor()
	require.NoError(t, err)

	client := testutils.NewTLSClient(anchor, tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key, Leaf: cert})
	resp, err := client.Get(ts.URL + "/?" + url.Values{"dn": {testDN}}.Encode())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Hello Alice (Visitor), your call sign is FAKE")

	resp, err = client.PostForm(ts.URL+"/messages", url.Values{"content": {"hello from a visitor"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// certificate from an unknown CA is rejected by the handshake
	other := newTestEnv(t)
	p12, err = other.issuer.Issue(ctx, "Mallory")
	require.NoError(t, err)
	key, cert, _, err = pkcs12.DecodeChain(p12, "")
	require.NoError(t, err)

	client = testutils.NewTLSClient(anchor, tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key})
	_, err = client.Get(ts.URL + "/")
	require.Error(t, err)

	// anonymous over TLS
	client = testutils.NewTLSClient(anchor)
	resp, err = client.Get(ts.URL + "/")
	require.NoError(t, err)
	require.Contains(t, readBody(t, resp), `href="/visitor"`)
}
