package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/pool"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage the pre-warmed container pool",
}

var poolWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Create pool containers ahead of a worker start",
	Long: `Creates the configured number of pool containers and leaves them
running. A worker started with --pool adopts them instead of paying
creation latency itself.`,
	RunE: runPoolWarm,
}

var poolDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Stop and remove every pool container",
	RunE:  runPoolDrain,
}

func init() {
	poolCmd.AddCommand(poolWarmCmd, poolDrainCmd)
}

func runPoolWarm(cmd *cobra.Command, args []string) error {
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

	p := pool.New(cfg.Pool, dc, logger)
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("warm pool: %w", err)
	}

	for _, name := range p.MemberNames() {
		fmt.Println(name)
	}
	logger.Info("pool warmed", "size", p.Size(), "capacity", cfg.Pool.Capacity)
	return nil
}

func runPoolDrain(cmd *cobra.Command, args []string) error {
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

	listed, err := dc.ListManagedContainers(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	drained := 0
	for _, ctr := range listed {
		if ctr.Role != "pool" {
			continue
		}
		if ctr.Running {
			if err := dc.StopContainer(ctx, ctr.ID, cfg.Sandbox.StopGracePeriod); err != nil {
				logger.Warn("drain: stop failed", "name", ctr.Name, "error", err)
			}
		}
		if err := dc.RemoveContainer(ctx, ctr.ID); err != nil {
			logger.Warn("drain: remove failed", "name", ctr.Name, "error", err)
			continue
		}
		drained++
	}

	fmt.Printf("drained %d pool container(s)\n", drained)
	return nil
}
