package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// RunOnce reads a single JSON request document from r, executes it and
// writes exactly one JSON response document to out. Unlike Run it is
// not line-oriented: the whole input is one request.
func (w *Worker) RunOnce(ctx context.Context, r io.Reader, out io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	input := strings.TrimSpace(string(data))
	var resp = w.handleDoc(ctx, input)

	enc := json.NewEncoder(out)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (w *Worker) handleDoc(ctx context.Context, input string) any {
	if input == "" {
		return map[string]any{"success": false, "error": "no input"}
	}
	return w.handleLine(ctx, input)
}
