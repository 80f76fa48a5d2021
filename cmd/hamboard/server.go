package main

import (
	"github.com/spf13/cobra"

	"hamboard"
	"hamboard/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "start message board",
		RunE:  func(cmd *cobra.Command, args []string) error { return hamboard.Run(cmd.Context()) },
	}

	flags := cmd.Flags()
	flags.String("bind", config.BindAddress(), "listen address")
	flags.String("host", config.Host(), "server host name, common name of CA and server certificate")
	flags.Bool("tls", config.TLS(), "serve https with client certificate authentication")
	flags.String("dburl", config.DBURL(), "message store url: sqlite://, mysql://, postgresql://")
	flags.Bool("trust-query-dn", config.TrustQueryDN(), "take identity from dn query parameter, development only")

	config.BindFlag(config.KeyBindAddress, flags.Lookup("bind"))
	config.BindFlag(config.KeyHost, flags.Lookup("host"))
	config.BindFlag(config.KeyTLS, flags.Lookup("tls"))
	config.BindFlag(config.KeyDBURL, flags.Lookup("dburl"))
	config.BindFlag(config.KeyTrustQueryDN, flags.Lookup("trust-query-dn"))

	rootCmd.AddCommand(cmd)
}
