// Package worker implements the long-lived request loop: one JSON
// request per input line, one JSON response per output line, forever.
// No input, however malformed, terminates the loop.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/store"
	"github.com/kapsel-run/kapsel/protocol"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 10 * 1024 * 1024

type Worker struct {
	cfg        config.WorkerConfig
	newSandbox SandboxFactory
	recorder   Recorder
	logger     *slog.Logger
}

// New wires a worker. recorder may be nil when no ledger is wanted.
func New(cfg config.WorkerConfig, factory SandboxFactory, recorder Recorder, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:        cfg,
		newSandbox: factory,
		recorder:   recorder,
		logger:     logger,
	}
}

// Run reads request lines from r until EOF or ctx cancellation,
// writing exactly one response line per request line to w. Requests are
// processed strictly sequentially. A line over maxLineBytes is drained
// and answered with a failure response; it never kills the loop.
func (w *Worker) Run(ctx context.Context, r io.Reader, out io.Writer) error {
	w.logger.Info("worker started")

	bw := bufio.NewWriter(out)
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker interrupted")
			return ctx.Err()
		default:
		}

		line, tooLong, err := readLine(br)
		if err != nil && err != io.EOF {
			return fmt.Errorf("read input: %w", err)
		}
		atEOF := err == io.EOF

		tRecv := time.Now()
		var resp protocol.Response
		switch text := strings.TrimSpace(line); {
		case tooLong:
			w.logger.Warn("request line too long", "limit_bytes", maxLineBytes)
			resp = protocol.Fail(nil, fmt.Sprintf("request line exceeds %d bytes", maxLineBytes), protocol.Timings{})
		case text != "":
			resp = w.handleLine(ctx, text)
		default:
			if atEOF {
				w.logger.Info("worker shutting down")
				return nil
			}
			continue
		}
		tProcess := time.Now()

		if err := writeResponse(bw, resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}

		w.logger.Debug("request complete",
			"id", resp.ID,
			"success", resp.Success,
			"process_ms", tProcess.Sub(tRecv).Milliseconds(),
			"output_ms", time.Since(tProcess).Milliseconds())

		if atEOF {
			w.logger.Info("worker shutting down")
			return nil
		}
	}
}

// readLine reads one newline-terminated line. A line over maxLineBytes
// is consumed to its end and reported as too long instead of failing;
// err is io.EOF when the input is exhausted.
func readLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxLineBytes {
				tooLong = true
				buf = nil
			}
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		return string(buf), tooLong, rerr
	}
}

// handleLine parses and dispatches one request line. It never returns
// an error: every failure becomes a failure response.
func (w *Worker) handleLine(ctx context.Context, line string) protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return protocol.Fail(nil, "invalid json: "+err.Error(), protocol.Timings{})
	}
	return w.process(ctx, &req)
}

// Execute runs a single parsed request. It exists for callers that
// carry their own transport, such as the MCP server.
func (w *Worker) Execute(ctx context.Context, req *protocol.Request) protocol.Response {
	return w.process(ctx, req)
}

// process executes one parsed request and classifies the outcome.
func (w *Worker) process(ctx context.Context, req *protocol.Request) protocol.Response {
	timings := protocol.Timings{}
	start := time.Now()
	id := req.EchoID()

	if err := req.Validate(); err != nil {
		return protocol.Fail(id, err.Error(), timings)
	}

	var resp protocol.Response
	var sandboxName string
	switch req.Lang() {
	case protocol.LanguageBash:
		resp = w.processBash(ctx, req, timings, start)
	default:
		resp, sandboxName = w.processPython(ctx, req, timings, start)
	}

	w.record(req, &resp, sandboxName)
	return resp
}

func (w *Worker) processPython(ctx context.Context, req *protocol.Request, timings protocol.Timings, start time.Time) (protocol.Response, string) {
	id := req.EchoID()

	// Initialization happens once at process start; nothing to import
	// per-request.
	timings[protocol.StageImport] = 0

	tInit := time.Now()
	sb, err := w.newSandbox(ctx, req.Packages)
	if err != nil {
		timings[protocol.StageTotal] = msSince(start)
		w.logger.Error("sandbox setup failed", "id", id, "error", err)
		return protocol.Fail(id, err.Error(), timings), ""
	}
	defer sb.Close(context.WithoutCancel(ctx))
	sandboxName := sb.ContainerName()
	timings[protocol.StageSandboxInit] = msSince(tInit)

	tExec := time.Now()
	result, err := sb.RunCode(ctx, req.Code, nil)
	timings[protocol.StageCodeExec] = msSince(tExec)
	timings[protocol.StageTotal] = msSince(start)

	if err != nil {
		w.logger.Error("execution failed", "id", id, "error", err)
		resp := protocol.Fail(id, err.Error(), timings)
		resp.Traceback = fmt.Sprintf("%+v", err)
		return resp, sandboxName
	}

	w.logger.Info("request done", "id", id, "total_ms", timings[protocol.StageTotal], "result_len", len(result))
	return protocol.OK(id, result, timings), sandboxName
}

func (w *Worker) record(req *protocol.Request, resp *protocol.Response, sandboxName string) {
	if w.recorder == nil {
		return
	}
	rec := &store.Execution{
		RequestID:  fmt.Sprintf("%v", resp.ID),
		Language:   string(req.Lang()),
		Success:    resp.Success,
		Error:      resp.Error,
		Sandbox:    sandboxName,
		DurationMs: resp.Timings[protocol.StageTotal],
	}
	if err := w.recorder.RecordExecution(rec); err != nil {
		// Ledger trouble must not affect the response stream.
		w.logger.Warn("recording execution failed", "error", err)
	}
}

// writeResponse emits one response line and flushes it immediately so a
// line-buffered caller sees it without delay.
func writeResponse(bw *bufio.Writer, resp protocol.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// Should not happen for our own types; emit a minimal line so
		// the one-response-per-request invariant holds.
		data, _ = json.Marshal(protocol.Fail(resp.ID, "response serialization failed", nil))
	}
	if _, err := bw.Write(append(data, '\n')); err != nil {
		return err
	}
	return bw.Flush()
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
