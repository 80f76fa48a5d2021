package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hamboard"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ca",
		Short: "local certificate authority",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "generate CA and trust anchor unless a valid CA exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := hamboard.NewToolkit()
			if err != nil {
				return err
			}

			manager := hamboard.NewTrustStore(tk)
			if err := manager.Ensure(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), manager.Paths().Trust)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "check CA key and certificate pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := hamboard.NewToolkit()
			if err != nil {
				return err
			}

			manager := hamboard.NewTrustStore(tk)
			if !manager.HasCA(cmd.Context()) {
				return errors.Errorf("no valid CA in %s", manager.Paths().Cert)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "CA ok: %s\n", manager.Paths().Cert)
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}
