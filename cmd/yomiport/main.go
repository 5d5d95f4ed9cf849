// Command yomiport ingests Yomichan dictionary archives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/japaniel/yomiport/pkg/config"
)

var version = "dev"

// app carries the state shared by subcommands.
type app struct {
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger

	// buildLogger is replaced in tests.
	buildLogger func(level zapcore.Level) (*zap.Logger, error)
}

func newApp() *app {
	return &app{
		buildLogger: func(level zapcore.Level) (*zap.Logger, error) {
			cfg := zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(level)
			return cfg.Build()
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "yomiport",
		Short: "Ingest Yomichan dictionary archives",
		Long: `yomiport reads Yomichan dictionary archives (zip files holding index.json
and numbered term, kanji, metadata and tag banks), validates every entry,
and optionally stores the result in SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			level, err := cfg.Level()
			if err != nil {
				return err
			}
			if a.verbose {
				level = zapcore.DebugLevel
			}
			logger, err := a.buildLogger(level)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newIngestCmd(a))
	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(newApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
