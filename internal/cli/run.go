package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/yogisync/internal/auth"
	"github.com/roach88/yogisync/internal/cache"
	"github.com/roach88/yogisync/internal/config"
)

// newLogger builds the text logger every command injects into the packages
// it drives. Verbose switches the level to DEBUG.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// loadConfig reads the dotenv file, then the YAML config and environment.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := config.LoadDotenv(opts.EnvFile); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load env file", err)
		}
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openCache opens the SQLite cache, creating its directory first.
func openCache(path string) (*cache.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create cache directory", err)
		}
	}
	st, err := cache.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	return st, nil
}

// closeCache closes st, logging rather than returning the error.
func closeCache(st *cache.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing cache", "error", err)
	}
}

// googleClient returns an authorised HTTP client for the Gmail and Calendar
// APIs. A missing token is a configuration error.
func googleClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	oauthCfg, err := auth.LoadConfig(cfg.ClientSecretPath, auth.Scopes...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load client secret", err)
	}
	client, err := auth.Client(ctx, oauthCfg, cfg.TokenPath)
	if errors.Is(err, auth.ErrNoToken) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("no token at %s", cfg.TokenPath), err)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load token", err)
	}
	return client, nil
}
