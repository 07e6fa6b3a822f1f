package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NoOutput is returned by RunCode when the code exits zero with nothing
// on either stream.
const NoOutput = "No output"

// RunCode executes python code inside the container and returns the
// classified output. A non-zero exit from the code is reported in the
// returned string, not as an error; the error return is reserved for
// infrastructure failures dispatching the exec.
func (s *Sandbox) RunCode(ctx context.Context, code string, envVars map[string]string) (string, error) {
	code = dedent(code)

	s.logger.Debug("executing code", "len", len(code), "preview", preview(code))

	cmd := buildPythonCommand(code, envVars)

	start := time.Now()
	out, err := s.res.runtime.Exec(ctx, s.res.containerID, []string{"sh", "-c", cmd})
	if err != nil {
		return "", fmt.Errorf("exec: %w", err)
	}
	s.logger.Debug("exec finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"exit_code", out.ExitCode,
		"stdout_len", len(out.Stdout),
		"stderr_len", len(out.Stderr))

	return classify(out.ExitCode, string(out.Stdout), string(out.Stderr)), nil
}

// buildPythonCommand assembles the in-container command line: env vars,
// then the interpreter with the code as one safely quoted argument.
func buildPythonCommand(code string, envVars map[string]string) string {
	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("env")
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(shellQuote(envVars[k]))
	}
	b.WriteString(" python -c ")
	b.WriteString(shellQuote(code))
	return b.String()
}

// classify translates an exec outcome into the value returned to the
// caller. Exit 0 with only stderr output is deliberately reported as an
// error string even though the process succeeded; see DESIGN.md.
func classify(exitCode int, stdout, stderr string) string {
	if exitCode != 0 {
		return fmt.Sprintf("Error (exit code %d): %s", exitCode, stderr)
	}
	if stdout != "" {
		return stdout
	}
	if stderr != "" {
		return "Error: " + stderr
	}
	return NoOutput
}

// shellQuote wraps s in single quotes, escaping embedded single quotes
// by closing and reopening the quoting ('"'"'), so arbitrary code can
// ride through sh -c unharmed.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// dedent strips the longest common leading whitespace from all non-blank
// lines, so indented code blocks embedded in callers run as written.
func dedent(s string) string {
	lines := strings.Split(s, "\n")

	margin := ""
	found := false
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := line[:len(line)-len(trimmed)]
		if !found {
			margin = indent
			found = true
			continue
		}
		margin = commonPrefix(margin, indent)
	}

	if margin == "" {
		return s
	}

	for i, line := range lines {
		if strings.TrimLeft(line, " \t") == "" {
			continue
		}
		lines[i] = strings.TrimPrefix(line, margin)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	i := 0
	for i < max && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// preview truncates code for log output.
func preview(code string) string {
	p := strings.TrimSpace(code)
	if len(p) > 200 {
		p = p[:197] + "..."
	}
	return p
}
