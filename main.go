package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeanpaulrichter/phasorviz/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	devLog     bool

	// Set by PersistentPreRunE.
	cfg      *config.Config
	logger   *zap.Logger
	logLevel zap.AtomicLevel
)

// versionCode is set at build time with -ldflags "-X main.versionCode=N".
var versionCode = ""

var rootCmd = &cobra.Command{
	Use:   "phasorviz",
	Short: "Native host for the phasorviz phasor diagram editor",
	Long: `phasorviz hosts the phasor diagram web content in a native window,
a headless browser or the system browser, and gives it a toolbar, a save
sandbox in the downloads folder and hand-off of shared drawings.

Run without arguments to open the editor.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		if versionCode != "" && cfg.App.VersionCode == "" {
			cfg.App.VersionCode = versionCode
		}

		logger, err = buildLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost(cmd, args, runOptions{})
	},
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if devLog || lc.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	logLevel = zap.NewAtomicLevelAt(level)
	zc.Level = logLevel
	return zc.Build()
}

// applyLogLevel follows log.level from a reloaded config unless --verbose
// pinned it.
func applyLogLevel(lc config.LogConfig) {
	if verbose {
		return
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return
	}
	if logLevel.Level() != level {
		logLevel.SetLevel(level)
		logger.Info("log level changed", zap.Stringer("level", level))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human-readable development logging")

	rootCmd.AddCommand(runCmd, serveCmd, openCmd, menuCmd, loadCmd, pingCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
