// Package guard stops running application processes before a build so that
// artifact writes do not collide with file locks held by the app.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
)

// ProcessInfo identifies one running OS process.
type ProcessInfo struct {
	PID  int
	Name string
}

// ProcessOps abstracts the OS process operations the guard needs. The real
// implementation is platform specific; tests substitute a fake.
type ProcessOps interface {
	// List enumerates running processes.
	List(ctx context.Context) ([]ProcessInfo, error)
	// Terminate requests graceful shutdown (SIGTERM or equivalent).
	Terminate(pid int) error
	// Kill force-terminates (SIGKILL or equivalent).
	Kill(pid int) error
}

// Guard terminates processes matching the application identity before a
// build run. Termination failures are warnings, never errors: the
// subsequent artifact write may still succeed.
type Guard struct {
	ops         ProcessOps
	processName string
	grace       time.Duration
	poll        time.Duration
	logger      *slog.Logger
}

// New creates a guard for the named process. An empty name disables the
// guard entirely.
func New(ops ProcessOps, processName string, grace, poll time.Duration) *Guard {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	return &Guard{
		ops:         ops,
		processName: processName,
		grace:       grace,
		poll:        poll,
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (g *Guard) WithLogger(logger *slog.Logger) *Guard {
	g.logger = logger
	return g
}

// Acquire runs the scoped acquisition: enumerate matching processes, request
// graceful termination, wait up to the grace period, then force-kill
// survivors. It runs once per orchestration run, before the first build.
// The returned error is always a non-fatal warning.
func (g *Guard) Acquire(ctx context.Context) (int, error) {
	if g.processName == "" {
		return 0, nil
	}

	matches, err := g.matching(ctx)
	if err != nil {
		return 0, errors.ProcessWarning(err, "failed to enumerate processes")
	}
	if len(matches) == 0 {
		return 0, nil
	}

	g.logger.Info("Stopping running application before build",
		logfields.Name(g.processName), slog.Int("processes", len(matches)))

	for _, proc := range matches {
		if err := g.ops.Terminate(proc.PID); err != nil {
			g.logger.Warn("Failed to signal process", logfields.PID(proc.PID), logfields.Error(err))
		}
	}

	survivors, waitErr := g.waitForExit(ctx)
	if waitErr != nil {
		return 0, errors.ProcessWarning(waitErr, "interrupted while waiting for processes to exit")
	}

	for _, proc := range survivors {
		g.logger.Warn("Process ignored graceful shutdown, force killing", logfields.PID(proc.PID))
		if err := g.ops.Kill(proc.PID); err != nil {
			g.logger.Warn("Failed to kill process", logfields.PID(proc.PID), logfields.Error(err))
		}
	}

	// One final poll so the caller knows whether locks are actually gone.
	remaining, err := g.matching(ctx)
	if err == nil && len(remaining) > 0 {
		return len(matches) - len(remaining), errors.ProcessWarning(nil,
			fmt.Sprintf("%d process(es) named %s still running after kill", len(remaining), g.processName))
	}
	return len(matches), nil
}

// waitForExit polls until all matching processes are gone or the grace
// period elapses, returning the survivors.
func (g *Guard) waitForExit(ctx context.Context) ([]ProcessInfo, error) {
	deadline := time.Now().Add(g.grace)
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		matches, err := g.matching(ctx)
		if err == nil && len(matches) == 0 {
			return nil, nil
		}
		if time.Now().After(deadline) {
			return matches, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Guard) matching(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := g.ops.List(ctx)
	if err != nil {
		return nil, err
	}
	var matches []ProcessInfo
	for _, proc := range procs {
		if nameMatches(proc.Name, g.processName) {
			matches = append(matches, proc)
		}
	}
	return matches, nil
}

// nameMatches compares process names ignoring path and .exe suffix so a
// configured "webarcade" matches /opt/app/webarcade and webarcade.exe.
func nameMatches(procName, target string) bool {
	base := filepath.Base(procName)
	base = strings.TrimSuffix(base, ".exe")
	return strings.EqualFold(base, strings.TrimSuffix(target, ".exe"))
}
