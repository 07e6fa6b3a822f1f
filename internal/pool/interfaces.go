package pool

import (
	"context"
	"time"

	"github.com/kapsel-run/kapsel/internal/docker"
)

// Runtime is the slice of the container runtime the pool needs.
type Runtime interface {
	CreateContainer(ctx context.Context, opts docker.CreateOpts) (string, error)
	ListManagedContainers(ctx context.Context) ([]docker.ManagedContainer, error)
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error
	RemoveContainer(ctx context.Context, containerID string) error
}
