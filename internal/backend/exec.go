package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/plugbuild/internal/logfields"
)

// runCommand executes an external toolchain command in dir. In verbose mode
// output streams straight through; otherwise it is captured and attached to
// the error so failures stay diagnosable without flooding normal runs.
func (b *Builder) runCommand(ctx context.Context, dir, name string, args ...string) error {
	b.logger.Debug("Running toolchain command",
		logfields.Name(name+" "+strings.Join(args, " ")), logfields.Path(dir))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	if b.verbose {
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

// tailLines returns the last n lines of s.
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
