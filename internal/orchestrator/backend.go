package orchestrator

import (
	"context"

	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// Backend compiles one plugin. Implementations are external collaborators
// (frontend bundler, cargo); the orchestrator treats them as opaque: it
// forwards step names to subscribers and checks only the terminal outcome.
// onStep is called synchronously once per named build step.
type Backend interface {
	Build(ctx context.Context, plugin workspace.Plugin, onStep func(step string)) error
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, plugin workspace.Plugin, onStep func(step string)) error

func (f BackendFunc) Build(ctx context.Context, plugin workspace.Plugin, onStep func(step string)) error {
	return f(ctx, plugin, onStep)
}

// Guard acquires exclusive access to output artifacts before a run by
// stopping processes that may hold file locks on them. Acquire blocks until
// termination finishes or times out; it returns the number of processes
// terminated and a non-fatal warning when survivors remain.
type Guard interface {
	Acquire(ctx context.Context) (int, error)
}
