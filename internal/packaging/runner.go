package packaging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes an external command in a working directory. It exists so
// tests can observe the pipeline without a toolchain installed.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands via os/exec. In verbose mode output streams
// through; otherwise the tail of the output is attached to the error.
type ExecRunner struct {
	verbose bool
}

// NewExecRunner creates a runner.
func NewExecRunner(verbose bool) *ExecRunner {
	return &ExecRunner{verbose: verbose}
}

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	if r.verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return nil
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		tail := tailLines(output.String(), 20)
		if tail != "" {
			return fmt.Errorf("%s failed: %w\n%s", name, err, tail)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
