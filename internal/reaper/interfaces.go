package reaper

import (
	"context"
	"time"

	"github.com/kapsel-run/kapsel/internal/docker"
)

// Runtime abstracts the docker operations the reaper needs.
type Runtime interface {
	ListManagedContainers(ctx context.Context) ([]docker.ManagedContainer, error)
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error
	RemoveContainer(ctx context.Context, containerID string) error
	ListImagesByPrefix(ctx context.Context, prefix string) ([]string, error)
	RemoveImage(ctx context.Context, ref string) error
}

// InUse reports the container names and image tags currently owned by
// live sandboxes and pools. Anything it names is never reaped.
type InUse func() (containers []string, images []string)
