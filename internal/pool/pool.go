// Package pool maintains a fixed-size set of pre-warmed containers that
// sandboxes can borrow instead of paying container creation latency.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/docker"
)

// ErrExhausted is returned when no member becomes free within the
// acquire timeout. Callers may retry later or fall back to a non-pooled
// sandbox.
var ErrExhausted = errors.New("no containers available in pool")

// Member is one pre-warmed pool container.
type Member struct {
	ID   string
	Name string
}

// Pool hands out pre-warmed containers under mutual exclusion. Acquire
// and Release are the only mutators of the in-use set.
type Pool struct {
	cfg     config.PoolConfig
	runtime Runtime
	logger  *slog.Logger

	mu      sync.Mutex
	members []Member
	inUse   map[string]struct{}
}

func New(cfg config.PoolConfig, rt Runtime, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:     cfg,
		runtime: rt,
		logger:  logger,
		inUse:   make(map[string]struct{}),
	}
}

// Init synchronously fills the pool: pre-warmed containers left behind
// by `pool warm` are adopted first, then the shortfall is created. A
// member that fails to create is logged and skipped, leaving the pool
// smaller than requested; only context cancellation aborts the fill.
func (p *Pool) Init(ctx context.Context) error {
	p.logger.Info("warming pool", "capacity", p.cfg.Capacity, "image", p.cfg.Image)

	adopted := p.adoptExisting(ctx)

	for i := adopted; i < p.cfg.Capacity; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := "kapsel-pool-" + uuid.New().String()[:8]
		id, err := p.runtime.CreateContainer(ctx, docker.CreateOpts{
			Name:        name,
			Image:       p.cfg.Image,
			Cmd:         []string{"tail", "-f", "/dev/null"},
			NetworkMode: "none",
			Limits: config.Limits{
				MemLimit:  p.cfg.MemLimit,
				CPUPeriod: p.cfg.CPUPeriod,
				CPUQuota:  p.cfg.CPUQuota,
			},
			Labels: map[string]string{"kapsel.role": "pool"},
		})
		if err != nil {
			p.logger.Error("failed to create pool container", "index", i, "error", err)
			continue
		}

		p.mu.Lock()
		p.members = append(p.members, Member{ID: id, Name: name})
		p.mu.Unlock()

		p.logger.Info("pool container ready", "index", i+1, "capacity", p.cfg.Capacity, "name", name)
	}

	return nil
}

// adoptExisting takes over running pool containers from a previous
// process, up to capacity. Listing failures are not fatal; the pool is
// simply filled from scratch.
func (p *Pool) adoptExisting(ctx context.Context) int {
	listed, err := p.runtime.ListManagedContainers(ctx)
	if err != nil {
		p.logger.Warn("pool: listing existing containers failed", "error", err)
		return 0
	}

	adopted := 0
	for _, ctr := range listed {
		if adopted >= p.cfg.Capacity {
			break
		}
		if ctr.Role != "pool" || !ctr.Running {
			continue
		}

		p.mu.Lock()
		p.members = append(p.members, Member{ID: ctr.ID, Name: ctr.Name})
		p.mu.Unlock()

		adopted++
		p.logger.Info("adopted pre-warmed container", "name", ctr.Name)
	}
	return adopted
}

// Size returns the number of members the pool actually holds.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// MemberNames returns the container names of every member, free or
// checked out.
func (p *Pool) MemberNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.members))
	for _, m := range p.members {
		names = append(names, m.Name)
	}
	return names
}

// Acquire returns a member not currently checked out, polling the member
// list in order until one frees up or timeout elapses.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (Member, error) {
	deadline := time.Now().Add(timeout)

	for {
		if m, ok := p.tryAcquire(); ok {
			return m, nil
		}

		if time.Now().After(deadline) {
			return Member{}, fmt.Errorf("%w: waited %s", ErrExhausted, timeout)
		}

		select {
		case <-ctx.Done():
			return Member{}, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// tryAcquire scans members in list order and checks out the first free
// one. Scan and mark happen under one lock hold, so a member can never
// be handed out twice.
func (p *Pool) tryAcquire() (Member, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.members {
		if _, busy := p.inUse[m.ID]; !busy {
			p.inUse[m.ID] = struct{}{}
			return m, true
		}
	}
	return Member{}, false
}

// Release returns a member to the pool. Releasing an already-free or
// unknown member is a no-op.
func (p *Pool) Release(m Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, m.ID)
}

// Shutdown stops and removes every member, best effort. A failing member
// never blocks cleanup of the rest.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	members := p.members
	p.members = nil
	p.inUse = make(map[string]struct{})
	p.mu.Unlock()

	for _, m := range members {
		if err := p.runtime.StopContainer(ctx, m.ID, 10*time.Second); err != nil {
			p.logger.Warn("pool shutdown: stop failed", "name", m.Name, "error", err)
		}
		if err := p.runtime.RemoveContainer(ctx, m.ID); err != nil {
			p.logger.Warn("pool shutdown: remove failed", "name", m.Name, "error", err)
		}
	}
}
