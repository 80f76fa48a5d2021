package testutils

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
)

// NewTLSClient http client trusting rootPEM; certs are presented as client certificates
func NewTLSClient(rootPEM []byte, certs ...tls.Certificate) *http.Client {
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(rootPEM)

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:      pool,
				Certificates: certs,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse },
	}
}
