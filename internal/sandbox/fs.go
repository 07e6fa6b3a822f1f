package sandbox

import (
	"context"
	"fmt"
	"path"
)

// WriteFile writes content to filename inside the container, creating
// parent directories first and verifying the file landed. Content may be
// text or binary.
func (s *Sandbox) WriteFile(ctx context.Context, filename string, content []byte) error {
	if dir := path.Dir(filename); dir != "." && dir != "/" {
		out, err := s.res.runtime.Exec(ctx, s.res.containerID, []string{"sh", "-c", "mkdir -p " + shellQuote(dir)})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFileWrite, err)
		}
		if out.ExitCode != 0 {
			return fmt.Errorf("%w: create directory %s: %s", ErrFileWrite, dir, string(out.Stderr))
		}
	}

	if err := s.res.runtime.CopyFileTo(ctx, s.res.containerID, filename, content); err != nil {
		return fmt.Errorf("%w: %v", ErrFileWrite, err)
	}

	out, err := s.res.runtime.Exec(ctx, s.res.containerID, []string{"sh", "-c", "test -f " + shellQuote(filename)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileWrite, err)
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%w: %s missing after transfer", ErrFileWrite, filename)
	}

	return nil
}

// ReadFile returns the content of filename inside the container as text.
func (s *Sandbox) ReadFile(ctx context.Context, filename string) (string, error) {
	out, err := s.res.runtime.Exec(ctx, s.res.containerID, []string{"cat", filename})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileRead, err)
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("%w: %s", ErrFileRead, string(out.Stderr))
	}
	return string(out.Stdout), nil
}
