//go:build integration

package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/docker"
	"github.com/kapsel-run/kapsel/internal/sandbox"
	"github.com/kapsel-run/kapsel/internal/testutil"
	"github.com/kapsel-run/kapsel/internal/worker"
	"github.com/kapsel-run/kapsel/protocol"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testutil.TestConfig(t)
	cfg.Sandbox.PersistentName = "kapsel-itest-persistent"
	cfg.Sandbox.StartRetries = 20
	return cfg
}

func newDockerClient(t *testing.T) *docker.Client {
	t.Helper()

	dc, err := docker.New()
	require.NoError(t, err)
	if err := dc.Ping(context.Background()); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}
	t.Cleanup(func() { dc.Close() })
	return dc
}

func newWorker(t *testing.T, cfg *config.Config, dc *docker.Client, rec worker.Recorder) *worker.Worker {
	t.Helper()

	logger := testutil.Logger()
	factory := func(ctx context.Context, packages []string) (worker.CodeRunner, error) {
		sb, err := sandbox.New(ctx, cfg.Sandbox, dc, logger, sandbox.Options{Packages: packages})
		if err != nil {
			return nil, err
		}
		return sb, nil
	}
	return worker.New(cfg.Worker, factory, rec, logger)
}

// runRequests feeds request lines through a worker and decodes one
// response per line.
func runRequests(t *testing.T, w *worker.Worker, lines ...string) []protocol.Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for _, line := range lines {
			io.WriteString(pw, line+"\n")
		}
	}()

	var out strings.Builder
	require.NoError(t, w.Run(ctx, pr, &out))

	var responses []protocol.Response
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var resp protocol.Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}
