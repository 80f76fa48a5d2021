package main

import (
	"github.com/spf13/cobra"
	"github.com/whitekid/goxp/log"

	"hamboard"
	"hamboard/pkg/helper"
)

func init() {
	cmd := &cobra.Command{
		Use:   "visitor",
		Short: "visitor certificates",
	}

	var output string
	issue := &cobra.Command{
		Use:   "issue nickname",
		Short: "issue visitor certificate as PKCS#12 archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := hamboard.NewToolkit()
			if err != nil {
				return err
			}

			manager := hamboard.NewTrustStore(tk)
			if err := manager.Ensure(cmd.Context()); err != nil {
				return err
			}

			p12, err := hamboard.NewIssuer(tk, manager).Issue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			log.Infof("writing %s", output)
			return helper.WriteFile(output, p12, 0600)
		},
	}
	issue.Flags().StringVarP(&output, "output", "o", "client.p12", "output file, - for stdout")

	cmd.AddCommand(issue)
	rootCmd.AddCommand(cmd)
}
