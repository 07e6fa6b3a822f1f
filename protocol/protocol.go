// Package protocol defines the JSON-line message types exchanged between
// an orchestrating caller and the kapsel worker over stdin/stdout.
package protocol

import (
	"errors"
	"strings"
)

// Language selects the execution path for a request.
type Language string

const (
	LanguagePython Language = "python"
	LanguageBash   Language = "bash"
)

// DefaultID is echoed back when a request carries no usable id.
const DefaultID = "unknown"

var (
	ErrEmptyCode       = errors.New("missing or empty code")
	ErrUnknownLanguage = errors.New("unknown language")
)

// Request is one line of input to the worker. ID may be any JSON value
// and is echoed back verbatim in the response.
type Request struct {
	ID       any      `json:"id"`
	Code     string   `json:"code"`
	Language Language `json:"language,omitempty"`
	Packages []string `json:"packages,omitempty"`
}

// Lang returns the request language, defaulting to python.
func (r *Request) Lang() Language {
	if r.Language == "" {
		return LanguagePython
	}
	return r.Language
}

// EchoID returns the request id, or DefaultID when none was supplied.
func (r *Request) EchoID() any {
	if r.ID == nil {
		return DefaultID
	}
	return r.ID
}

// Validate checks the fields the worker requires before dispatch.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return ErrEmptyCode
	}
	switch r.Lang() {
	case LanguagePython, LanguageBash:
		return nil
	default:
		return ErrUnknownLanguage
	}
}

// Response is one line of output from the worker.
type Response struct {
	ID      any    `json:"id"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	// Traceback carries a diagnostic stack for unexpected infrastructure
	// failures; Stdout/Stderr carry the captured streams on bash failures.
	Traceback string  `json:"traceback,omitempty"`
	Stdout    string  `json:"stdout,omitempty"`
	Stderr    string  `json:"stderr,omitempty"`
	Timings   Timings `json:"timings"`
}

// Timings maps a stage name to elapsed wall-clock milliseconds. The map
// is observability data only; consumers must not depend on its keys.
type Timings map[string]float64

// Stage keys used by the worker.
const (
	StageImport      = "import_ms"
	StageSandboxInit = "sandbox_init_ms"
	StageCodeExec    = "code_exec_ms"
	StageTotal       = "total_ms"
)

// OK builds a success response.
func OK(id any, result string, timings Timings) Response {
	return Response{ID: id, Success: true, Result: result, Timings: timings}
}

// Fail builds a failure response.
func Fail(id any, errMsg string, timings Timings) Response {
	if id == nil {
		id = DefaultID
	}
	return Response{ID: id, Success: false, Error: errMsg, Timings: timings}
}

// BashTimeoutExitCode is the exit code synthesized when a bash request
// exceeds its wall-clock timeout, matching coreutils timeout(1).
const BashTimeoutExitCode = 124
