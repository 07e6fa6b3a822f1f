package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/pool"
	"github.com/kapsel-run/kapsel/internal/reaper"
	"github.com/kapsel-run/kapsel/internal/store"
	"github.com/kapsel-run/kapsel/internal/worker"
)

var usePool bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve JSON requests line by line on stdin/stdout",
	RunE:  runWorker,
}

func init() {
	// Register on both root and worker so that `kapsel --pool` and
	// `kapsel worker --pool` both work.
	for _, cmd := range []*cobra.Command{rootCmd, workerCmd} {
		cmd.Flags().BoolVar(&usePool, "pool", false, "pre-warm a container pool for package-free requests")
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	dc, err := connectDocker(ctx, logger)
	if err != nil {
		return err
	}
	defer dc.Close()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var p *pool.Pool
	if usePool {
		p = pool.New(cfg.Pool, dc, logger)
		if err := p.Init(ctx); err != nil {
			return fmt.Errorf("warm pool: %w", err)
		}
		defer p.Shutdown(context.WithoutCancel(ctx))
	}

	// One sweep before serving: no request is in flight yet, so any
	// unowned container is a leftover from a previous run.
	inUse := func() ([]string, []string) {
		if p == nil {
			return nil, nil
		}
		return p.MemberNames(), nil
	}
	reaper.New(dc, inUse, time.Minute, logger).Sweep(ctx)

	w := worker.New(cfg.Worker, sandboxFactory(cfg, dc, p, logger), st, logger)
	if err := w.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
