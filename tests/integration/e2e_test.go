//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapsel-run/kapsel/internal/pool"
	"github.com/kapsel-run/kapsel/internal/sandbox"
	"github.com/kapsel-run/kapsel/internal/testutil"
	"github.com/kapsel-run/kapsel/protocol"
)

func TestWorkerEndToEnd(t *testing.T) {
	dc := newDockerClient(t)
	cfg := testConfig(t)
	st := testutil.NewTestStore(t)
	w := newWorker(t, cfg, dc, st)

	responses := runRequests(t, w,
		`{"id": 1, "code": "print(6 * 7)"}`,
		`not even json`,
		`{"id": 3, "code": "import sys; print('to stderr', file=sys.stderr)"}`,
		`{"id": 4, "code": "echo from-bash", "language": "bash"}`,
	)
	require.Len(t, responses, 4)

	assert.True(t, responses[0].Success)
	assert.Equal(t, "42\n", responses[0].Result)
	assert.Contains(t, responses[0].Timings, protocol.StageTotal)

	assert.False(t, responses[1].Success)
	assert.Equal(t, protocol.DefaultID, responses[1].ID)

	// stderr-only output with exit 0 comes back as data, not failure.
	assert.True(t, responses[2].Success)
	assert.Contains(t, responses[2].Result, "Error: to stderr")

	assert.True(t, responses[3].Success)
	assert.Equal(t, "from-bash\n", responses[3].Result)

	// The invalid-json line never reaches the ledger; the other three do.
	succeeded, failed, err := st.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, failed)
}

func TestSandboxFileRoundtrip(t *testing.T) {
	dc := newDockerClient(t)
	cfg := testConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sb, err := sandbox.New(ctx, cfg.Sandbox, dc, testutil.Logger(), sandbox.Options{})
	require.NoError(t, err)
	defer sb.Close(ctx)

	require.NoError(t, sb.WriteFile(ctx, "/tmp/data/hello.txt", []byte("hi there")))

	data, err := sb.ReadFile(ctx, "/tmp/data/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi there", data)
}

func TestPersistentContainerSurvivesClose(t *testing.T) {
	dc := newDockerClient(t)
	cfg := testConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sb1, err := sandbox.New(ctx, cfg.Sandbox, dc, testutil.Logger(), sandbox.Options{})
	require.NoError(t, err)
	name := sb1.ContainerName()
	sb1.Close(ctx)

	info, err := dc.ContainerByName(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, info, "persistent container must outlive its sandbox")
	assert.True(t, info.Running)

	sb2, err := sandbox.New(ctx, cfg.Sandbox, dc, testutil.Logger(), sandbox.Options{})
	require.NoError(t, err)
	defer sb2.Close(ctx)
	assert.Equal(t, name, sb2.ContainerName())
}

func TestPoolAcquireReleaseShutdown(t *testing.T) {
	dc := newDockerClient(t)
	cfg := testConfig(t)
	cfg.Pool.Capacity = 2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	p := pool.New(cfg.Pool, dc, testutil.Logger())
	require.NoError(t, p.Init(ctx))
	defer p.Shutdown(context.WithoutCancel(ctx))
	require.Equal(t, 2, p.Size())

	m1, err := p.Acquire(ctx, cfg.Pool.AcquireTimeout)
	require.NoError(t, err)
	m2, err := p.Acquire(ctx, cfg.Pool.AcquireTimeout)
	require.NoError(t, err)
	require.NotEqual(t, m1.ID, m2.ID)

	_, err = p.Acquire(ctx, 200*time.Millisecond)
	require.ErrorIs(t, err, pool.ErrExhausted)

	p.Release(m1)
	m3, err := p.Acquire(ctx, cfg.Pool.AcquireTimeout)
	require.NoError(t, err)
	assert.Equal(t, m1.ID, m3.ID)
}
