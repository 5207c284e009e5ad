package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Runner executes an external extractor command and captures its stderr and
// exit code. It exists so tests can run the pipeline without real archive
// binaries installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr []byte, exitCode int, err error)
}

// ExecRunner runs the command with os/exec. Stdout is discarded, stderr is
// captured for the failure note.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var errBuf bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errBuf.Bytes(), exitErr.ExitCode(), nil
		}
		return errBuf.Bytes(), -1, err
	}
	return errBuf.Bytes(), 0, nil
}

// MoveFile relocates src to dst, falling back to copy-and-remove when a
// plain rename crosses filesystems (staging lives under the system temp
// directory, the target usually does not).
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
