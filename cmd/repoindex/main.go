// Package main implements the repoindex CLI, which chunks repositories,
// embeds the chunks and stores them in a per-repository vector collection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/embeddings"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"github.com/fyrsmithlabs/repoindex/internal/secrets"
	"github.com/fyrsmithlabs/repoindex/internal/telemetry"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	version = "dev"
)

func main() {
	ctx, cancel := signalContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repoindex",
	Short: "Index repositories into per-repository vector collections",
	Long: `repoindex splits a repository's source files into chunks, embeds them with
an explicitly chosen provider and stores the vectors in one collection per
repository.

Configuration is read from ~/.config/repoindex/config.yaml (or --config)
and the environment.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (json, console)")
}

// app holds what every command needs after bootstrap.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// bootstrap loads configuration, then starts telemetry and logging.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	applyLogOverrides(cfg, logLevel, logFormat)

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}
	logger.Debug(ctx, "configuration loaded",
		zap.String("engine", cfg.VectorStore.Engine),
		zap.String("chunking", cfg.Chunking.Strategy),
		logging.Secret("openai", cfg.OpenAI.APIKey),
		logging.Secret("gemini", cfg.Gemini.APIKey),
		logging.Secret("github", cfg.GitHub.Token),
	)
	return &app{cfg: cfg, logger: logger, telemetry: tel}, nil
}

func applyLogOverrides(cfg *config.Config, level, format string) {
	if level != "" {
		cfg.Logging.Level = level
	}
	if format != "" {
		cfg.Logging.Format = format
	}
}

// close flushes the shared vector store, telemetry and the logger.
func (a *app) close() {
	if err := vectorstore.Shutdown(); err != nil {
		a.logger.Error(context.Background(), "closing vector store", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(context.Background(), "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// store opens the process-wide vector store.
func (a *app) store() (*vectorstore.Store, error) {
	return vectorstore.Init(vectorstore.FromSettings(a.cfg.VectorStore), a.logger.Underlying().Named("vectorstore"))
}

func (a *app) gateway() (*embeddings.Gateway, error) {
	return embeddings.New(a.cfg, embeddings.WithLogger(a.logger.Underlying().Named("embeddings")))
}

func (a *app) assembler() (*assembler.Assembler, error) {
	var scrubber secrets.Scrubber = secrets.NoopScrubber{}
	if a.cfg.Scrub.Enabled {
		s, err := secrets.New()
		if err != nil {
			return nil, err
		}
		scrubber = s
	}
	acfg, err := assembler.FromSettings(a.cfg, scrubber, a.logger.Underlying().Named("assembler"))
	if err != nil {
		return nil, err
	}
	return assembler.New(acfg)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "received %v, shutting down\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func parseProvider(tag string) (embeddings.Provider, error) {
	p, err := embeddings.ParseProvider(tag)
	if err != nil {
		return p, fmt.Errorf("--provider: %w (one of local, openai, gemini, claude)", err)
	}
	return p, nil
}
