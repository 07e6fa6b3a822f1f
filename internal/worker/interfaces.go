package worker

import (
	"context"

	"github.com/kapsel-run/kapsel/internal/store"
)

// CodeRunner is the slice of a sandbox the worker drives for one
// python request.
type CodeRunner interface {
	RunCode(ctx context.Context, code string, envVars map[string]string) (string, error)
	ContainerName() string
	Close(ctx context.Context)
}

// SandboxFactory provisions a fresh sandbox for one request. The worker
// closes whatever it gets back, even when execution fails.
type SandboxFactory func(ctx context.Context, packages []string) (CodeRunner, error)

// Recorder persists execution outcomes for observability.
type Recorder interface {
	RecordExecution(rec *store.Execution) error
}
