package reaper

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kapsel-run/kapsel/internal/docker"
)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) ListManagedContainers(ctx context.Context) ([]docker.ManagedContainer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]docker.ManagedContainer), args.Error(1)
}

func (m *MockRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	return m.Called(ctx, containerID, grace).Error(0)
}

func (m *MockRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	return m.Called(ctx, containerID).Error(0)
}

func (m *MockRuntime) ListImagesByPrefix(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRuntime) RemoveImage(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}
