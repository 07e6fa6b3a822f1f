package sandbox

import (
	"context"
	"time"

	"github.com/kapsel-run/kapsel/internal/docker"
	"github.com/kapsel-run/kapsel/internal/pool"
)

// Runtime is the slice of the container runtime a sandbox needs.
type Runtime interface {
	CreateContainer(ctx context.Context, opts docker.CreateOpts) (string, error)
	ContainerByName(ctx context.Context, name string) (*docker.ContainerInfo, error)
	IsRunning(ctx context.Context, containerID string) (bool, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error
	RemoveContainer(ctx context.Context, containerID string) error
	Exec(ctx context.Context, containerID string, cmd []string) (*docker.ExecOutput, error)
	CopyFileTo(ctx context.Context, containerID, path string, data []byte) error
	BuildImage(ctx context.Context, baseImage string, packages []string, tag string) error
	RemoveImage(ctx context.Context, ref string) error
}

// Pool hands out pre-warmed containers.
type Pool interface {
	Acquire(ctx context.Context, timeout time.Duration) (pool.Member, error)
	Release(m pool.Member)
}
