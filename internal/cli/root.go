// Package cli implements the cardflow command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/cardflow/pkg/config"
	"github.com/vnykmshr/cardflow/pkg/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// load reads the configuration, applies flag overrides and builds the logger.
func (o *RootOptions) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, w)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// NewRootCommand creates the root command for the cardflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cardflow",
		Short: "Flashcard back end",
		Long: `cardflow serves the cards, dictionaries, settings, tts and translation
processors over a Redis request/reply bus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML configuration (default ./cardflow.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
