package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/imaging"
	"github.com/pesoscan/pesoscan/internal/models"
	"github.com/pesoscan/pesoscan/internal/report"
	"github.com/pesoscan/pesoscan/internal/scanner"
)

func newScanCmd(opts *options) *cobra.Command {
	var (
		output string
		save   bool
		mode   string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "scan IMAGE",
		Short: "Scan a peso bill image for counterfeit features",
		Long: `Submits an image (file path or http(s) URL) to the inference backend's
comprehensive scan and prints the classified result: authenticity band,
confidence, denomination, security features and detection boxes.

Use --save to keep the result in the local history.`,
		Example: `  # Scan a photo and print a summary
  pesoscan scan ./bill.jpg

  # Scan, save to history and print JSON
  pesoscan scan ./bill.jpg --save --output json

  # Scan an image hosted elsewhere against a specific backend
  pesoscan scan https://example.com/sample-500.jpg --api-url http://10.0.0.5:8000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(output, report.FormatText, report.FormatJSON, report.FormatYAML)
			if err != nil {
				return err
			}
			scanMode := models.ScanMode(mode)
			if scanMode != models.ModeUpload && scanMode != models.ModeCamera {
				return fmt.Errorf("invalid mode %q (valid: upload, camera)", mode)
			}

			ctx := cmd.Context()
			img, err := imaging.NewFetcher().Load(ctx, args[0])
			if err != nil {
				return err
			}

			resp, err := opts.scanClient().Submit(ctx, img)
			if err != nil {
				return fmt.Errorf("scan failed: %s", scanner.UserMessage(err))
			}

			out := cmd.OutOrStdout()
			if raw {
				var pretty any
				if err := json.Unmarshal(resp.Body, &pretty); err != nil {
					return fmt.Errorf("failed to decode scan result: %w", err)
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(pretty); err != nil {
					return err
				}
			} else {
				scan := report.NewScan(&resp.Payload, models.ScanTypeComprehensive)
				if err := report.WriteScan(out, scan, format); err != nil {
					return err
				}
			}

			if save {
				rec := history.NewRecord(resp.Body, imageLocation(args[0]), scanMode, time.Now())
				if err := opts.historyStore().Add(rec); err != nil {
					return fmt.Errorf("failed to save to history: %w", err)
				}
				slog.Info("Scan saved to history", "id", rec.ID, "file", opts.historyFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&save, "save", false, "Save the result to the local history")
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeUpload), "How the image was acquired: upload or camera")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the backend payload instead of the classified result")

	return cmd
}

// imageLocation is what the history remembers about where an image came from
func imageLocation(source string) string {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return source
	}
	if abs, err := filepath.Abs(source); err == nil {
		return abs
	}
	return source
}
