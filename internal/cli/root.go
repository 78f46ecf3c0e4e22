package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/config"
	"github.com/ppiankov/hostpatch/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "hostpatch",
	Short:         "Instrument a host application with event hooks",
	Long:          "Rewrites selected host methods so they raise cancellable events to registered handlers,\nand audits every change handlers make to guarded fields.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.hostpatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and builds the process logger on stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
