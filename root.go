package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairshare/config"
)

var (
	configFile string
	dataDir    string
	verbose    bool

	cfg    *config.DeviceConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pairshare",
	Short: "Pair two devices on the local network and hand one payload across",
	Long: `pairshare pairs two devices on the local network. One side creates a group
and listens on a fixed port, the other discovers it, joins and sends a single
identifier or file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		return setupLogger(cfg.LogLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file, .json or .yaml (default is config.json in the data directory)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default is the per-user app directory, or $"+config.DataDirEnv+")")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")

	rootCmd.AddCommand(
		newReceiveCmd(),
		newSendCmd(),
		newPeersCmd(),
		newHistoryCmd(),
	)
}

func loadConfig() (*config.DeviceConfig, error) {
	dir := dataDir
	if dir == "" {
		resolved, err := config.ResolveDataDir()
		if err != nil {
			return nil, err
		}
		dir = resolved
	}

	loaded, _, err := config.LoadOrCreateIn(dir, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dataDir = dir
	return loaded, nil
}

func setupLogger(level string) error {
	var zcfg zap.Config
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		atomic, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = atomic
		logDir := filepath.Join(dataDir, "logs")
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{filepath.Join(logDir, "pairshare.log")}
	}

	built, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	logger = built
	return nil
}
