// Package sandbox provides isolated execution environments for untrusted
// code. A Sandbox owns exactly one container — freshly created, borrowed
// from a pool, or the shared persistent one — plus at most one temporary
// built image, and tears both down on Close.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/docker"
	"github.com/kapsel-run/kapsel/internal/pool"
)

// defaultPackages is baked into the persistent container's image on
// first-time creation: data-science, web and image libraries.
var defaultPackages = []string{
	"requests", "numpy", "pandas", "matplotlib", "scipy",
	"beautifulsoup4", "fastapi", "pillow", "opencv-python", "regex",
}

// DefaultPackages returns a copy of the package set baked into the
// persistent image, for callers that pre-build it.
func DefaultPackages() []string {
	out := make([]string, len(defaultPackages))
	copy(out, defaultPackages)
	return out
}

// Options control how the sandbox environment is provisioned. The zero
// value selects the default path: reuse (or first create) the shared
// persistent container.
type Options struct {
	// CustomImage runs the sandbox from the given image instead of the
	// configured base image. Setting it (or Packages) diverts from the
	// persistent-reuse path to a one-off ephemeral container.
	CustomImage string

	// Packages are pip-installed into a throwaway image layered on the
	// base image. The Sandbox owns that image and removes it on Close.
	Packages []string

	// NetworkMode overrides the configured network mode.
	NetworkMode string

	// Limits override the configured resource limits.
	Limits *config.Limits

	// Pool, when set (and CustomImage/Packages are not), borrows a
	// pre-warmed container instead of touching the persistent one. The
	// member is released back on Close, never stopped or removed.
	Pool           Pool
	AcquireTimeout time.Duration
}

// Sandbox is the unit of work handed one snippet of code.
type Sandbox struct {
	cfg    config.SandboxConfig
	logger *slog.Logger
	res    *resources
}

// resources holds everything Close must tear down. It is kept separate
// from the Sandbox so a GC cleanup can fire if the caller forgets Close.
type resources struct {
	runtime Runtime
	logger  *slog.Logger

	pool   Pool
	member *pool.Member

	containerID   string
	containerName string
	persistent    bool
	tempImage     string

	stopGrace          time.Duration
	imageRemoveBackoff time.Duration

	mu     sync.Mutex
	closed bool
}

// New provisions a sandbox environment per opts and returns a ready
// Sandbox. Provisioning failures are hard errors; nothing is retried
// beyond the bounded start polling of the persistent container.
func New(ctx context.Context, cfg config.SandboxConfig, rt Runtime, logger *slog.Logger, opts Options) (*Sandbox, error) {
	s := &Sandbox{
		cfg:    cfg,
		logger: logger,
		res: &resources{
			runtime:            rt,
			logger:             logger,
			stopGrace:          cfg.StopGracePeriod,
			imageRemoveBackoff: 2 * time.Second,
		},
	}

	if err := s.setup(ctx, opts); err != nil {
		// Roll back anything provisioned before the failure.
		s.res.close(context.WithoutCancel(ctx))
		return nil, err
	}

	// Last line of defense when a caller drops the Sandbox without
	// Close; the worker always closes explicitly.
	goruntime.AddCleanup(s, func(r *resources) { r.close(context.Background()) }, s.res)

	return s, nil
}

func (s *Sandbox) setup(ctx context.Context, opts Options) error {
	defaultSetup := opts.CustomImage == "" && opts.Packages == nil

	if defaultSetup && opts.Pool != nil {
		return s.attachPooled(ctx, opts)
	}

	if defaultSetup {
		reused, err := s.reusePersistent(ctx)
		if err != nil {
			return err
		}
		if reused {
			return nil
		}
	}

	return s.create(ctx, opts, defaultSetup)
}

// attachPooled borrows a pre-warmed container. Close releases it back.
func (s *Sandbox) attachPooled(ctx context.Context, opts Options) error {
	timeout := opts.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	m, err := opts.Pool.Acquire(ctx, timeout)
	if err != nil {
		return err
	}

	s.res.pool = opts.Pool
	s.res.member = &m
	s.res.containerID = m.ID
	s.res.containerName = m.Name
	s.logger.Debug("attached pooled container", "name", m.Name)
	return nil
}

// reusePersistent attaches to the well-known persistent container if it
// exists, starting it first when necessary. Returns false when absent.
func (s *Sandbox) reusePersistent(ctx context.Context) (bool, error) {
	info, err := s.res.runtime.ContainerByName(ctx, s.cfg.PersistentName)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrContainerStart, err)
	}
	if info == nil {
		return false, nil
	}

	if !info.Running {
		s.logger.Info("persistent container stopped, starting it", "name", s.cfg.PersistentName)
		if err := s.res.runtime.StartContainer(ctx, info.ID); err != nil {
			return false, fmt.Errorf("%w: %v", ErrContainerStart, err)
		}
		if err := s.waitRunning(ctx, info.ID); err != nil {
			return false, err
		}
	}

	s.res.containerID = info.ID
	s.res.containerName = info.Name
	s.res.persistent = true
	return true, nil
}

// waitRunning polls until the container reports running, bounded by the
// configured retry count and interval.
func (s *Sandbox) waitRunning(ctx context.Context, containerID string) error {
	for i := 0; i < s.cfg.StartRetries; i++ {
		running, err := s.res.runtime.IsRunning(ctx, containerID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrContainerStart, err)
		}
		if running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StartInterval):
		}
	}
	return fmt.Errorf("%w: %s did not reach running state", ErrContainerStart, containerID)
}

// create builds the image if packages were requested and runs a new
// container. On the first-time default path the container takes the
// well-known persistent name so later sandboxes reuse it.
func (s *Sandbox) create(ctx context.Context, opts Options, defaultSetup bool) error {
	image := opts.CustomImage
	if image == "" {
		image = s.cfg.BaseImage
	}

	packages := opts.Packages
	if defaultSetup {
		// First-time persistent setup: bake in the default package set.
		packages = defaultPackages
	}

	if len(packages) > 0 {
		tag := "kapsel-tmp-" + uuid.New().String()[:8]
		if defaultSetup {
			tag = s.cfg.PersistentName + ":latest"
		}
		s.logger.Info("building image", "base", image, "packages", len(packages), "tag", tag)
		if err := s.res.runtime.BuildImage(ctx, image, packages, tag); err != nil {
			return fmt.Errorf("%w: %v", ErrImageBuild, err)
		}
		image = tag
		if !defaultSetup {
			// The persistent image stays; one-off images are owned by
			// this sandbox and removed on Close.
			s.res.tempImage = tag
		}
	}

	name := "kapsel-sandbox-" + uuid.New().String()[:8]
	role := "ephemeral"
	if defaultSetup {
		name = s.cfg.PersistentName
		role = "persistent"
	}

	networkMode := opts.NetworkMode
	if networkMode == "" {
		networkMode = s.cfg.NetworkMode
	}
	limits := s.cfg.Limits
	if opts.Limits != nil {
		limits = *opts.Limits
	}

	id, err := s.res.runtime.CreateContainer(ctx, docker.CreateOpts{
		Name:        name,
		Image:       image,
		Cmd:         []string{"tail", "-f", "/dev/null"},
		NetworkMode: networkMode,
		DNS:         s.cfg.DNS,
		Limits:      limits,
		Labels:      map[string]string{"kapsel.role": role},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContainerCreate, err)
	}

	s.res.containerID = id
	s.res.containerName = name
	s.res.persistent = defaultSetup
	return nil
}

// ContainerName returns the name of the owned container.
func (s *Sandbox) ContainerName() string {
	return s.res.containerName
}

// Persistent reports whether this sandbox is attached to the shared
// persistent container.
func (s *Sandbox) Persistent() bool {
	return s.res.persistent
}

// Close tears down owned resources: a pooled container is released back
// to its pool, an ephemeral one is stopped and removed, and the
// persistent container is never touched. A one-off built image is
// removed with bounded retries. Safe to call multiple times; failures
// are logged, never returned.
func (s *Sandbox) Close(ctx context.Context) {
	s.res.close(ctx)
}

func (r *resources) close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	switch {
	case r.member != nil:
		r.pool.Release(*r.member)
		r.member = nil
	case r.containerID != "" && !r.persistent:
		if err := r.runtime.StopContainer(ctx, r.containerID, r.stopGrace); err != nil {
			r.logger.Warn("stopping container failed", "name", r.containerName, "error", err)
		}
		if err := r.runtime.RemoveContainer(ctx, r.containerID); err != nil {
			r.logger.Warn("removing container failed", "name", r.containerName, "error", err)
		}
	}
	// The persistent container is left running unconditionally.
	r.containerID = ""

	if r.tempImage != "" {
		r.removeTempImage(ctx)
		r.tempImage = ""
	}
}

func (r *resources) removeTempImage(ctx context.Context) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		err := r.runtime.RemoveImage(ctx, r.tempImage)
		if err == nil {
			return
		}
		r.logger.Warn("removing temp image failed", "tag", r.tempImage, "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(r.imageRemoveBackoff)
		}
	}
	r.logger.Error("giving up on temp image removal", "tag", r.tempImage, "attempts", attempts)
}
