package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docportal/internal/phone"
)

func newNormalizeCmd() *cobra.Command {
	var (
		country string
		local   bool
	)

	cmd := &cobra.Command{
		Use:   "normalize <number>",
		Short: "Normalize a phone number",
		Long:  "Prints the canonical digits and E.164 form the portal would send for a typed phone number.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if local {
				raw = phone.PrepareLocal(raw, country)
			}
			res := phone.Normalize(raw, country)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "digits:  %s\n", res.Digits)
			fmt.Fprintf(out, "e164:    %s\n", res.E164)
			fmt.Fprintf(out, "ok:      %t\n", res.OK)
			if res.Warning != "" {
				fmt.Fprintf(out, "warning: %s\n", res.Warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&country, "country", "DK", "ISO-2 country code")
	cmd.Flags().BoolVar(&local, "local", false, "treat the input as a locally typed number and prefix the dial code")
	return cmd
}
