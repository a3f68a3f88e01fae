package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesoscan/pesoscan/internal/report"
	"github.com/pesoscan/pesoscan/internal/scanner"
)

func newHealthCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the inference backend is up and its models are loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(output, report.FormatText, report.FormatJSON, report.FormatYAML)
			if err != nil {
				return err
			}

			h, err := opts.scanClient().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check failed: %s", scanner.UserMessage(err))
			}
			if err := report.WriteHealth(cmd.OutOrStdout(), h, format); err != nil {
				return err
			}
			if h.Status != "healthy" {
				return fmt.Errorf("backend at %s is %s", opts.apiURL, h.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")

	return cmd
}
