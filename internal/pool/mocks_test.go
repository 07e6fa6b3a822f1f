package pool

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kapsel-run/kapsel/internal/docker"
)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) CreateContainer(ctx context.Context, opts docker.CreateOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) ListManagedContainers(ctx context.Context) ([]docker.ManagedContainer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]docker.ManagedContainer), args.Error(1)
}

func (m *MockRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	args := m.Called(ctx, containerID, grace)
	return args.Error(0)
}

func (m *MockRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}
