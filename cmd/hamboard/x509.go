package main

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/whitekid/goxp/fx"

	"hamboard/identity"
	"hamboard/pkg/helper"
	"hamboard/pkg/helper/x509x"
)

var x509cmd *cobra.Command

func init() {
	x509cmd = &cobra.Command{
		Use:   "x509",
		Short: "x509 utility commands",
	}
	rootCmd.AddCommand(x509cmd)
}

func init() {
	cmd := &cobra.Command{
		Use: "csr",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info csr",
		Short: "show CSR informations",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if err := csrInfo(cmd.Context(), cmd.OutOrStdout(), arg); err != nil {
					return err
				}
			}
			return nil
		},
	})

	x509cmd.AddCommand(cmd)
}

// csrInfo show csr information
// openssl req -text in <filename>
func csrInfo(ctx context.Context, w io.Writer, filename string) error {
	pemBytes, err := helper.ReadFile(filename)
	if err != nil {
		return err
	}

	csr, err := x509x.ParseCSR(pemBytes)
	if err != nil {
		return err
	}

	if csr == nil {
		return errors.New("invalid pem")
	}

	modulus, _ := x509x.Modulus(csr.PublicKey)

	return helper.WriteJSON(w, &struct {
		Version            int                `json:",omitempty"`
		Subject            string             `json:",omitempty"`
		Identity           *identity.Identity `json:",omitempty"`
		PublicKeyAlgorithm string             `json:",omitempty"`
		Modulus            string             `json:",omitempty"`
		SignatureValid     bool
	}{
		Version:            csr.Version,
		Subject:            x509x.FormatDN(csr.Subject),
		Identity:           identityOf(x509x.FormatDN(csr.Subject)),
		PublicKeyAlgorithm: csr.PublicKeyAlgorithm.String(),
		Modulus:            strings.TrimSpace(string(modulus)),
		SignatureValid:     csr.CheckSignature() == nil,
	})
}

func identityOf(dn string) *identity.Identity {
	id, err := identity.Parse(dn)
	if err != nil {
		return nil
	}
	return id
}

func init() {
	cmd := &cobra.Command{
		Use: "cert",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info cert",
		Short: "show x509 certificate informations",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, filename := range args {
				if err := certInfo(cmd.Context(), cmd.OutOrStdout(), filename); err != nil {
					return err
				}
			}
			return nil
		},
	})

	x509cmd.AddCommand(cmd)
}

type certInfoOutput struct {
	Version            int                `json:",omitempty"`
	Subject            string             `json:",omitempty"`
	Identity           *identity.Identity `json:",omitempty"`
	Issuer             string             `json:",omitempty"`
	PublicKeyAlgorithm string             `json:",omitempty"`
	Modulus            string             `json:",omitempty"`

	DNSName   string `json:",omitempty"`
	IPAddress string `json:",omitempty"`

	SerialNumber string `json:",omitempty"`
	IsCA         bool
	KeyUsage     []string
	ExtKeyUsage  []string

	NotAfter  time.Time `json:",omitempty"`
	NotBefore time.Time `json:",omitempty"`
}

// certInfo show certification info of every certificate in the file
// openssl x509 -text -in <filename>
func certInfo(ctx context.Context, w io.Writer, filename string) error {
	pemBytes, err := helper.ReadFile(filename)
	if err != nil {
		return err
	}

	certs, err := x509x.ParseCertificateChain(pemBytes)
	if err != nil {
		return err
	}

	if len(certs) == 0 {
		return errors.Errorf("no certificate in %s", filename)
	}

	for _, cert := range certs {
		modulus, _ := x509x.Modulus(cert.PublicKey)

		if err := helper.WriteJSON(w, &certInfoOutput{
			Version:            cert.Version,
			Subject:            x509x.FormatDN(cert.Subject),
			Identity:           identityOf(x509x.FormatDN(cert.Subject)),
			Issuer:             x509x.FormatDN(cert.Issuer),
			PublicKeyAlgorithm: cert.PublicKeyAlgorithm.String(),
			Modulus:            strings.TrimSpace(string(modulus)),
			DNSName:            strings.Join(cert.DNSNames, ", "),
			IPAddress:          strings.Join(fx.Map(cert.IPAddresses, func(e net.IP) string { return e.String() }), ", "),
			SerialNumber:       cert.SerialNumber.String(),
			IsCA:               cert.IsCA,
			KeyUsage:           x509x.KeyUsageToStr(cert.KeyUsage),
			ExtKeyUsage:        x509x.ExtKeyUsageToStr(cert.ExtKeyUsage),
			NotAfter:           cert.NotAfter,
			NotBefore:          cert.NotBefore,
		}); err != nil {
			return err
		}
	}

	return nil
}

