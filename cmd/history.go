package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/report"
)

func newHistoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage saved scans",
		Long: `The history keeps the 50 most recent saved scans, newest first, in a
local JSON file (see --history-file).`,
	}

	cmd.AddCommand(newHistoryListCmd(opts))
	cmd.AddCommand(newHistoryShowCmd(opts))
	cmd.AddCommand(newHistoryDeleteCmd(opts))
	cmd.AddCommand(newHistoryClearCmd(opts))
	cmd.AddCommand(newHistoryExportCmd(opts))

	return cmd
}

func newHistoryListCmd(opts *options) *cobra.Command {
	var filter, sortOrder, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved scans",
		Example: `  # Newest first
  pesoscan history list

  # Only counterfeits, most confident first
  pesoscan history list --filter counterfeit --sort confidence

  # Spreadsheet-friendly
  pesoscan history list --output csv > scans.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := history.ParseFilter(filter)
			if err != nil {
				return err
			}
			order, err := history.ParseSort(sortOrder)
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(output, report.FormatText, report.FormatJSON, report.FormatYAML, report.FormatCSV)
			if err != nil {
				return err
			}

			records, err := opts.historyStore().List(f, order)
			if err != nil {
				return err
			}
			return report.WriteHistory(cmd.OutOrStdout(), records, format)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", string(history.FilterAll), "Filter: all, authentic or counterfeit")
	cmd.Flags().StringVar(&sortOrder, "sort", string(history.SortNewest), "Order: newest, oldest or confidence")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml or csv")

	return cmd
}

func newHistoryShowCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one saved scan in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(output, report.FormatText, report.FormatJSON, report.FormatYAML)
			if err != nil {
				return err
			}

			rec, ok, err := opts.historyStore().Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no saved scan with id %s", args[0])
			}

			view, err := report.NewRecord(rec)
			if err != nil {
				return err
			}
			return report.WriteRecord(cmd.OutOrStdout(), view, format)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")

	return cmd
}

func newHistoryDeleteCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one saved scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete saved scan %s?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			removed, err := opts.historyStore().Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no saved scan with id %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func newHistoryClearCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete the entire scan history?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			if err := opts.historyStore().Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func newHistoryExportCmd(opts *options) *cobra.Command {
	var format, outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the scan history to a file",
		Long: `Writes the full history to a file named pesoscan-history-YYYY-MM-DD.<ext>
in the current directory unless --file is given. Use --file - for stdout.`,
		Example: `  # JSON export, same shape as the stored history
  pesoscan history export

  # Columnar export for analysis tools
  pesoscan history export --format parquet --file scans.parquet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "csv", "parquet":
			default:
				return fmt.Errorf("unsupported format: %s (supported: json, csv, parquet)", format)
			}

			path := outputPath
			if path == "" {
				path = exportFilename(time.Now(), format)
			}

			if path == "-" {
				return exportHistory(cmd.OutOrStdout(), opts.historyStore(), format)
			}
			if err := exportToFile(path, opts.historyStore(), format); err != nil {
				return err
			}
			slog.Info("History exported", "file", path, "format", format)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Export format: json, csv or parquet")
	cmd.Flags().StringVarP(&outputPath, "file", "f", "", "Destination file, - for stdout")

	return cmd
}

func exportHistory(w io.Writer, store *history.Store, format string) error {
	switch format {
	case "parquet":
		return store.ExportParquet(w)
	case "csv":
		records, err := store.All()
		if err != nil {
			return err
		}
		return report.WriteHistory(w, records, report.FormatCSV)
	default:
		data, err := store.Export()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}

// exportToFile leaves no file behind when the export fails
func exportToFile(path string, store *history.Store, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to write %s: %w", path, closeErr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return exportHistory(f, store, format)
}

func exportFilename(t time.Time, format string) string {
	name := history.ExportFilename(t)
	if format == "json" {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + format
}

// confirm asks a yes/no question; anything but y or yes is a no
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	reader := bufio.NewReader(in)
	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
