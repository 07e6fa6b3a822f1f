// Package reaper removes leftovers from crashed or interrupted runs:
// labeled containers nothing owns anymore and orphaned throwaway
// images. The persistent container is never touched.
package reaper

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// tempImagePrefix matches the throwaway images built for requests that
// install extra packages.
const tempImagePrefix = "kapsel-tmp-"

const stopGrace = 5 * time.Second

type Reaper struct {
	runtime  Runtime
	inUse    InUse
	interval time.Duration
	logger   *slog.Logger
}

func New(rt Runtime, inUse InUse, interval time.Duration, logger *slog.Logger) *Reaper {
	if inUse == nil {
		inUse = func() ([]string, []string) { return nil, nil }
	}
	return &Reaper{
		runtime:  rt,
		inUse:    inUse,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval)

	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep removes orphaned containers and temp images, returning how many
// of each were reclaimed. Every individual failure is logged and
// counted; one bad container never aborts the sweep.
func (r *Reaper) Sweep(ctx context.Context) (containers, images int) {
	ownedContainers, ownedImages := r.inUse()

	containers = r.sweepContainers(ctx, toSet(ownedContainers))
	images = r.sweepImages(ctx, toSet(ownedImages))

	if containers > 0 || images > 0 {
		r.logger.Info("sweep reclaimed orphans", "containers", containers, "images", images)
	}
	return containers, images
}

func (r *Reaper) sweepContainers(ctx context.Context, owned map[string]struct{}) int {
	listed, err := r.runtime.ListManagedContainers(ctx)
	if err != nil {
		r.logger.Error("sweep: list containers", "error", err)
		return 0
	}

	reclaimed := 0
	for _, ctr := range listed {
		if ctr.Role == "persistent" {
			continue
		}
		if _, ok := owned[ctr.Name]; ok {
			continue
		}

		r.logger.Info("reaping orphaned container", "name", ctr.Name, "role", ctr.Role, "running", ctr.Running)

		if ctr.Running {
			if err := r.runtime.StopContainer(ctx, ctr.ID, stopGrace); err != nil {
				r.logger.Error("sweep: stop container", "name", ctr.Name, "error", err)
			}
		}
		if err := r.runtime.RemoveContainer(ctx, ctr.ID); err != nil {
			r.logger.Error("sweep: remove container", "name", ctr.Name, "error", err)
			continue
		}
		reclaimed++
	}
	return reclaimed
}

func (r *Reaper) sweepImages(ctx context.Context, owned map[string]struct{}) int {
	tags, err := r.runtime.ListImagesByPrefix(ctx, tempImagePrefix)
	if err != nil {
		r.logger.Error("sweep: list images", "error", err)
		return 0
	}

	reclaimed := 0
	for _, tag := range tags {
		// Owners record bare tags; the daemon reports them as tag:latest.
		if _, ok := owned[tag]; ok {
			continue
		}
		if _, ok := owned[strings.TrimSuffix(tag, ":latest")]; ok {
			continue
		}

		r.logger.Info("reaping orphaned image", "tag", tag)
		if err := r.runtime.RemoveImage(ctx, tag); err != nil {
			r.logger.Error("sweep: remove image", "tag", tag, "error", err)
			continue
		}
		reclaimed++
	}
	return reclaimed
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
