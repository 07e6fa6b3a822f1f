package worker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kapsel-run/kapsel/internal/store"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunCode(ctx context.Context, code string, envVars map[string]string) (string, error) {
	args := m.Called(ctx, code, envVars)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) ContainerName() string {
	return m.Called().String(0)
}

func (m *MockRunner) Close(ctx context.Context) {
	m.Called(ctx)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordExecution(rec *store.Execution) error {
	return m.Called(rec).Error(0)
}
