package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/sandbox"
)

var prebuildCmd = &cobra.Command{
	Use:   "prebuild",
	Short: "Build the persistent container's image ahead of time",
	Long: `Bakes the default package set on top of the configured base image so
the first request does not pay the pip install cost.`,
	RunE: runPrebuild,
}

func runPrebuild(cmd *cobra.Command, args []string) error {
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

	tag := cfg.Sandbox.PersistentName + ":latest"
	packages := sandbox.DefaultPackages()
	logger.Info("building image", "tag", tag, "base", cfg.Sandbox.BaseImage, "packages", len(packages))

	if err := dc.BuildImage(ctx, cfg.Sandbox.BaseImage, packages, tag); err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	fmt.Printf("built %s\n", tag)
	return nil
}
