package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one JSON request from stdin and exit",
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
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

	w := worker.New(cfg.Worker, sandboxFactory(cfg, dc, nil, logger), nil, logger)
	return w.RunOnce(ctx, os.Stdin, os.Stdout)
}
