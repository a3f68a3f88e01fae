package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/scanner"
	"github.com/pesoscan/pesoscan/internal/storage"
)

// options holds the settings shared by every subcommand. Flags win over
// environment variables, which win over defaults.
type options struct {
	apiURL      string
	historyFile string
	dataset     string
	maxImageDim int
	logLevel    string
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "pesoscan",
		Short: "Counterfeit detection client for Philippine peso bills",
		Long: `PesoScan submits photos of Philippine peso bills to an inference backend,
classifies the answer (authenticity band, denomination, security features) and
keeps a local history of past scans.

It also ships a small web server exposing the same flow to a browser frontend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if err := opts.resolve(cmd); err != nil {
				return err
			}
			setupLogging(opts.logLevel)
			return nil
		},
	}

	opts.bindFlags(cmd.PersistentFlags())

	// Add subcommands
	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

func (o *options) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.apiURL, "api-url", scanner.DefaultBaseURL, "Inference backend base URL (env PESOSCAN_API_URL)")
	flags.StringVar(&o.historyFile, "history-file", "", "File holding the local scan history (env PESOSCAN_HISTORY_FILE)")
	flags.StringVar(&o.dataset, "dataset", "", "Dataset hint sent to the backend, \"auto\" lets it choose (env PESOSCAN_DATASET)")
	flags.IntVar(&o.maxImageDim, "max-image-dimension", 0, "Down-scale JPEGs whose longest side exceeds this many pixels, 0 disables (env PESOSCAN_MAX_IMAGE_DIMENSION)")
	flags.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error (env PESOSCAN_LOG_LEVEL)")
}

func (o *options) resolve(cmd *cobra.Command) error {
	flags := cmd.Flags()

	fromEnv := func(flag, env string, target *string) {
		if flags.Changed(flag) {
			return
		}
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
	fromEnv("api-url", "PESOSCAN_API_URL", &o.apiURL)
	fromEnv("history-file", "PESOSCAN_HISTORY_FILE", &o.historyFile)
	fromEnv("dataset", "PESOSCAN_DATASET", &o.dataset)
	fromEnv("log-level", "PESOSCAN_LOG_LEVEL", &o.logLevel)

	if !flags.Changed("max-image-dimension") {
		if v := os.Getenv("PESOSCAN_MAX_IMAGE_DIMENSION"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid PESOSCAN_MAX_IMAGE_DIMENSION %q: %w", v, err)
			}
			o.maxImageDim = n
		}
	}
	if o.maxImageDim < 0 {
		return fmt.Errorf("max image dimension must not be negative")
	}

	if o.historyFile == "" {
		o.historyFile = defaultHistoryFile()
	}
	return nil
}

func defaultHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pesoscan_storage.json"
	}
	return filepath.Join(dir, "pesoscan", "storage.json")
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	// stdout carries command output, so logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func (o *options) historyStore() *history.Store {
	return history.New(storage.NewFile(o.historyFile))
}

func (o *options) scanClient() *scanner.Client {
	return scanner.New(scanner.Options{
		BaseURL:           o.apiURL,
		Dataset:           o.dataset,
		MaxImageDimension: o.maxImageDim,
	})
}
