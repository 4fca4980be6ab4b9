package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kadaliao/logseq-reflect-sub001/internal/config"
	"github.com/kadaliao/logseq-reflect-sub001/internal/engine"
	"github.com/kadaliao/logseq-reflect-sub001/internal/llm"
	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
)

var (
	// Global flags
	configPath string
	dbPath     string
	page       string
	blockUUID  string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reflect",
	Short: "reflect - outline-native AI commands",
	Long: `reflect runs AI operations against a local block outline.

Each operation reads a source block, resolves its effective request
configuration from reflect-* properties up the ancestor chain, bounds
the surrounding outline content to a token budget, and streams the
model's answer back into the outline next to the source block.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars win either way.
		_ = godotenv.Load()

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath == "" {
			configPath = config.DefaultPath(".")
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			cfg.Outline.DatabasePath = dbPath
		}

		if err := logging.Initialize("."); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .reflect/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "outline database path (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&page, "page", "p", "", "target page for import (default from config)")
	rootCmd.PersistentFlags().StringVarP(&blockUUID, "block", "b", "", "source block UUID (default: current block)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(flashcardsCmd)
	rootCmd.AddCommand(breakdownCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(importCmd)
}

// openGraph opens the outline host backing store.
func openGraph() (*outline.SQLiteGraph, error) {
	g, err := outline.NewSQLiteGraph(cfg.Outline.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open outline database: %w", err)
	}
	return g, nil
}

// resolveSource picks the block an operation acts on: the --block flag,
// or the host's current block.
func resolveSource(g outline.Reader) (string, error) {
	if blockUUID != "" {
		if _, ok := g.Node(blockUUID); !ok {
			return "", fmt.Errorf("block %s not found", blockUUID)
		}
		return blockUUID, nil
	}
	if node, ok := g.CurrentNode(); ok {
		return node.UUID, nil
	}
	return "", fmt.Errorf("no source block: pass --block or set a current block")
}

// runOperation shares the lifecycle of the four AI commands: open the
// host, build the engine, run the operation, cancel on interrupt.
func runOperation(name string, op func(eng *engine.Engine, uuid string) error) error {
	g, err := openGraph()
	if err != nil {
		return err
	}
	defer g.Close()

	uuid, err := resolveSource(g)
	if err != nil {
		return err
	}

	eng := engine.New(g, llm.New(cfg), cfg)

	// Pick up config edits made while an operation is running; a failed
	// reload keeps the previous config.
	stopWatch, err := config.Watch(configPath, func(fresh *config.Config) {
		if dbPath != "" {
			fresh.Outline.DatabasePath = dbPath
		}
		cfg = fresh
		eng.ApplyConfig(fresh)
		logger.Info("configuration reloaded", zap.String("path", configPath))
	})
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigC)
	go func() {
		if _, ok := <-sigC; ok {
			logger.Info("interrupt received, cancelling", zap.String("operation", name))
			eng.Cancel()
		}
	}()

	logger.Info("running operation", zap.String("operation", name), zap.String("block", uuid))
	return op(eng, uuid)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
