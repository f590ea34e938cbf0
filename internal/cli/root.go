package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/erpsync/internal/control"
	"github.com/vietddude/erpsync/internal/core/config"
	"github.com/vietddude/stylelog"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "erpsync",
	Short: "ERP record store and search sync service",
	Long:  `erpsync stores ERP entity records, keeps the search index in sync and retries transient storage failures.`,
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and the config file and installs the logger.
func setup() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	stylelog.InitDefault(&tint.Options{
		Level:      logLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func logLevel(name string) slog.Level {
	if isDebug {
		return slog.LevelDebug
	}
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openApp builds the application for one-shot commands. Callers must Close it.
func openApp(ctx context.Context) *control.App {
	cfg := setup()
	app, err := control.NewApp(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize erpsync", "error", err)
		os.Exit(1)
	}
	return app
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewApp(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize erpsync", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start erpsync", "error", err)
		os.Exit(1)
	}

	slog.Info("erpsync started", "config", cfgPath, "port", cfg.Server.Port)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
