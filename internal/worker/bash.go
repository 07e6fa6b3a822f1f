package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/kapsel-run/kapsel/protocol"
)

// processBash runs the code as a host shell command under a hard
// wall-clock timeout. On timeout the process is killed and exit code
// 124 is synthesized.
func (w *Worker) processBash(ctx context.Context, req *protocol.Request, timings protocol.Timings, start time.Time) protocol.Response {
	id := req.EchoID()

	tExec := time.Now()
	stdout, stderr, exitCode := w.execBash(ctx, req.Code)
	timings[protocol.StageCodeExec] = msSince(tExec)
	timings[protocol.StageTotal] = msSince(start)

	if exitCode != 0 {
		w.logger.Info("bash request failed", "id", id, "exit_code", exitCode, "stderr_len", len(stderr))
		errMsg := stderr
		if errMsg == "" {
			errMsg = fmt.Sprintf("Bash exited with code %d", exitCode)
		}
		resp := protocol.Fail(id, errMsg, timings)
		resp.Stdout = stdout
		resp.Stderr = stderr
		return resp
	}

	w.logger.Info("bash request done", "id", id, "total_ms", timings[protocol.StageTotal], "stdout_len", len(stdout))
	return protocol.OK(id, stdout, timings)
}

func (w *Worker) execBash(ctx context.Context, code string) (stdout, stderr string, exitCode int) {
	execCtx, cancel := context.WithTimeout(ctx, w.cfg.BashTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", code)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	// Force Wait to return even if the command leaks pipe readers.
	cmd.WaitDelay = time.Second

	err := cmd.Run()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		// CommandContext killed the process; keep any partial stdout.
		return outBuf.String(),
			fmt.Sprintf("Bash execution timed out (%s)", w.cfg.BashTimeout),
			protocol.BashTimeoutExitCode
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode()
		}
		// Could not start the shell at all.
		return outBuf.String(), err.Error(), 1
	}

	return outBuf.String(), errBuf.String(), 0
}
