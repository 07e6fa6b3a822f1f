package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/mcpserver"
	"github.com/kapsel-run/kapsel/internal/store"
	"github.com/kapsel-run/kapsel/internal/worker"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the run_code tool over the Model Context Protocol on stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
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

	w := worker.New(cfg.Worker, sandboxFactory(cfg, dc, nil, logger), st, logger)
	return mcpserver.New(w, logger).ServeStdio()
}
