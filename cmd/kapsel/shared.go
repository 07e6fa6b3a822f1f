package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/docker"
	"github.com/kapsel-run/kapsel/internal/pool"
	"github.com/kapsel-run/kapsel/internal/sandbox"
	"github.com/kapsel-run/kapsel/internal/worker"
)

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to kapsel.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// newLogger logs to stderr: stdout belongs to the response stream.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func connectDocker(ctx context.Context, logger *slog.Logger) (*docker.Client, error) {
	dc, err := docker.New()
	if err != nil {
		return nil, err
	}
	if err := dc.Ping(ctx); err != nil {
		dc.Close()
		return nil, fmt.Errorf("docker ping failed — is Docker running?: %w", err)
	}
	logger.Info("docker connection OK")
	return dc, nil
}

// sandboxFactory decides the provisioning path per request: extra
// packages force a one-off image build, otherwise a pool member is
// borrowed when a pool exists, falling back to the shared persistent
// container.
func sandboxFactory(cfg *config.Config, dc *docker.Client, p *pool.Pool, logger *slog.Logger) worker.SandboxFactory {
	return func(ctx context.Context, packages []string) (worker.CodeRunner, error) {
		opts := sandbox.Options{}
		switch {
		case len(packages) > 0:
			opts.Packages = packages
		case p != nil:
			opts.Pool = p
			opts.AcquireTimeout = cfg.Pool.AcquireTimeout
		}

		sb, err := sandbox.New(ctx, cfg.Sandbox, dc, logger, opts)
		if err != nil {
			return nil, err
		}
		return sb, nil
	}
}
