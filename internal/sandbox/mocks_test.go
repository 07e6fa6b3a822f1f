package sandbox

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kapsel-run/kapsel/internal/docker"
	"github.com/kapsel-run/kapsel/internal/pool"
)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) CreateContainer(ctx context.Context, opts docker.CreateOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) ContainerByName(ctx context.Context, name string) (*docker.ContainerInfo, error) {
	args := m.Called(ctx, name)
	if info := args.Get(0); info != nil {
		return info.(*docker.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRuntime) IsRunning(ctx context.Context, containerID string) (bool, error) {
	args := m.Called(ctx, containerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRuntime) StartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	args := m.Called(ctx, containerID, grace)
	return args.Error(0)
}

func (m *MockRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockRuntime) Exec(ctx context.Context, containerID string, cmd []string) (*docker.ExecOutput, error) {
	args := m.Called(ctx, containerID, cmd)
	if out := args.Get(0); out != nil {
		return out.(*docker.ExecOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRuntime) CopyFileTo(ctx context.Context, containerID, path string, data []byte) error {
	args := m.Called(ctx, containerID, path, data)
	return args.Error(0)
}

func (m *MockRuntime) BuildImage(ctx context.Context, baseImage string, packages []string, tag string) error {
	args := m.Called(ctx, baseImage, packages, tag)
	return args.Error(0)
}

func (m *MockRuntime) RemoveImage(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

type MockPool struct {
	mock.Mock
}

func (m *MockPool) Acquire(ctx context.Context, timeout time.Duration) (pool.Member, error) {
	args := m.Called(ctx, timeout)
	return args.Get(0).(pool.Member), args.Error(1)
}

func (m *MockPool) Release(member pool.Member) {
	m.Called(member)
}
