// Package commands implements the slide-deck CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-deck/cmd/slide-deck/ui"
	"github.com/spherical/slide-deck/internal/config"
	"github.com/spherical/slide-deck/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "slide-deck",
	Short: "Turn processed documents into slide decks",
	Long: `slide-deck builds presentation decks from processed documents.
It can synthesize a deck locally, submit a document to a processing server
and follow the job's progress, or run the reference processing server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		ui.Init(noColor, verbose)
		logger = newLogger(cmd)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// newLogger keeps the interactive commands quiet unless asked otherwise; the
// server logs at the configured level.
func newLogger(cmd *cobra.Command) *observability.Logger {
	level := cfg.Observability.LogLevel
	format := cfg.Observability.LogFormat
	if cmd.Name() != "serve" {
		level = "warn"
		format = "console"
	}
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      format,
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
