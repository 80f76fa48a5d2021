package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hamboard/identity"
	"hamboard/pkg/helper"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dn",
		Short: "distinguished name utilities",
	}

	var format string
	parse := &cobra.Command{
		Use:   "parse dn",
		Short: "parse member identity from distinguished name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dnParse(cmd.OutOrStdout(), args[0], format)
		},
	}
	parse.Flags().StringVarP(&format, "output", "o", "yaml", "output format: yaml or json")

	cmd.AddCommand(parse)
	rootCmd.AddCommand(cmd)
}

func dnParse(w io.Writer, dn string, format string) error {
	id, err := identity.Parse(dn)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		return helper.WriteYAML(w, id)
	case "json":
		return helper.WriteJSON(w, id)
	}

	return errors.Errorf("unknown output format: %s", format)
}
