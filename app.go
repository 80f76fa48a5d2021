package hamboard

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"github.com/whitekid/goxp/log"

	"hamboard/api/board"
	"hamboard/api/endpoints"
	"hamboard/board/store"
	"hamboard/config"
	_ "hamboard/docs"
	"hamboard/pkg/helper"
	"hamboard/toolkit"
	"hamboard/truststore"
	"hamboard/visitor"
)

// Run make sure the CA is valid and serve the board until ctx is done.
// A CA bootstrap failure is returned before the listener starts.
func Run(ctx context.Context) error {
	app, err := newApp(ctx)
	if err != nil {
		return err
	}

	addr := config.BindAddress()
	if !config.TLS() {
		log.Infof("listening on http://%s", addr)
		return helper.StartEcho(ctx, app.echo, addr)
	}

	tlsConfig, err := app.tlsConfig(ctx)
	if err != nil {
		return err
	}

	log.Infof("listening on https://%s", addr)
	return helper.StartEchoTLS(ctx, app.echo, addr, tlsConfig)
}

type application struct {
	manager *truststore.Manager
	issuer  *visitor.Issuer
	store   store.Interface
	echo    *helper.Echo
}

func newApp(ctx context.Context) (*application, error) {
	tk, err := NewToolkit()
	if err != nil {
		return nil, err
	}

	manager := NewTrustStore(tk)
	if err := manager.Ensure(ctx); err != nil {
		return nil, errors.Wrap(err, "CA bootstrap failed")
	}

	s, err := store.NewSQLStore(config.DBURL())
	if err != nil {
		return nil, errors.Wrap(err, "fail to open message store")
	}

	app := &application{
		manager: manager,
		issuer:  NewIssuer(tk, manager),
		store:   s,
	}

	app.echo = helper.NewEcho()
	app.echo.GET("/swagger/*", echoSwagger.WrapHandler)
	endpoints.Route(app.echo, board.New(app.store, app.issuer, app.manager, board.Options{
		TrustQueryDN: config.TrustQueryDN(),
	}))

	if config.TrustQueryDN() {
		log.Infof("identity from dn query parameter is trusted; do not use in production")
	}

	return app, nil
}

// tlsConfig server certificate from the local CA; client certificates are optional and verified against the trust anchor
func (app *application) tlsConfig(ctx context.Context) (*tls.Config, error) {
	cert, err := app.manager.ServerCertificate(ctx, serverHosts()...)
	if err != nil {
		return nil, err
	}

	pool, err := app.manager.CertPool()
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// serverHosts names the server certificate is issued for
func serverHosts() []string {
	hosts := []string{config.Host()}

	if host, _, err := net.SplitHostPort(config.BindAddress()); err == nil && host != "" && host != config.Host() {
		hosts = append(hosts, host)
	}

	return hosts
}

// NewToolkit create toolkit backend from configuration
func NewToolkit() (toolkit.Interface, error) {
	return toolkit.New(config.Backend(), config.OpenSSLBinary(), config.ToolkitTimeout())
}

// NewTrustStore create trust store manager from configuration
func NewTrustStore(tk toolkit.Interface) *truststore.Manager {
	return truststore.New(tk, truststore.Config{
		Dir:          config.CADir(),
		UpstreamRoot: config.UpstreamRoot(),
		Host:         config.Host(),
		KeyBits:      config.KeyBits(),
		Days:         config.CADays(),
	})
}

// NewIssuer create visitor certificate issuer signing with manager's CA
func NewIssuer(tk toolkit.Interface, manager *truststore.Manager) *visitor.Issuer {
	return visitor.New(tk, manager.CA(), visitor.Config{
		Callsign:   config.VisitorCallsign(),
		Email:      config.VisitorEmail(),
		Days:       config.VisitorDays(),
		KeyBits:    config.KeyBits(),
		ScratchDir: config.ScratchDir(),
		Timeout:    config.ToolkitTimeout(),
	})
}
