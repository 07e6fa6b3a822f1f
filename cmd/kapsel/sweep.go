package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/reaper"
)

var sweepEvery time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned containers and throwaway images",
	Long: `Removes labeled containers and temp images left behind by crashed or
interrupted runs. The persistent container is never touched. Do not run
this while a worker is serving requests; its pool members and in-flight
containers look like orphans from outside.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepEvery, "every", 0, "keep sweeping at this interval (0 sweeps once)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	dc, err := connectDocker(ctx, logger)
	if err != nil {
		return err
	}
	defer dc.Close()

	if sweepEvery > 0 {
		reaper.New(dc, nil, sweepEvery, logger).Run(ctx)
		return nil
	}

	containers, images := reaper.New(dc, nil, time.Minute, logger).Sweep(ctx)
	fmt.Printf("removed %d container(s), %d image(s)\n", containers, images)
	return nil
}
