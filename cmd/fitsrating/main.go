package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fitsrating/internal/config"
	"fitsrating/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global flags and what is built from them.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	maxWidth   int
	maxHeight  int
	maxBytes   int64

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "fitsrating",
		Short: "Rate astrophotography FITS frames",
		Long: `fitsrating decodes FITS frames, renders stretched previews and measures
star quality (FWHM, HFR, eccentricity, SNR) for culling sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.IntVar(&a.maxWidth, "max-width", 0, "downsample output to at most this width (0 = full size)")
	flags.IntVar(&a.maxHeight, "max-height", 0, "downsample output to at most this height (0 = full size)")
	flags.Int64Var(&a.maxBytes, "max-bytes", 0, "refuse images larger than this many bytes (0 = a quarter of RAM, at most 4 GiB)")

	root.AddCommand(
		newHeaderCmd(a),
		newPreviewCmd(a),
		newAnalyzeCmd(a),
		newRateCmd(a),
		newWatchCmd(a),
	)
	return root
}

// setup loads the configuration and applies flag overrides.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("max-width") {
		cfg.Limits.MaxWidth = a.maxWidth
	}
	if flags.Changed("max-height") {
		cfg.Limits.MaxHeight = a.maxHeight
	}
	if flags.Changed("max-bytes") {
		cfg.Limits.MaxBytes = a.maxBytes
	}
	if err := cfg.Finalize(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return nil
}
