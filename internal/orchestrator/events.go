package orchestrator

import (
	"time"

	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
)

// Event is a domain event published by the orchestrator and consumed by
// progress handlers.
type Event interface{ Name() string }

// Event names published during a run.
const (
	EventRunStarted    = "RunStarted"
	EventGuardFinished = "GuardFinished"
	EventPluginSkipped = "PluginSkipped"
	EventTaskStarted   = "TaskStarted"
	EventStepStarted   = "StepStarted"
	EventTaskCompleted = "TaskCompleted"
	EventTaskFailed    = "TaskFailed"
	EventRunCompleted  = "RunCompleted"
)

// RunStarted is published once per run before the guard acquires access.
type RunStarted struct {
	RunID   string
	Plugins []string
	Force   bool
}

func (RunStarted) Name() string { return EventRunStarted }

// GuardFinished is published after the process guard completes, whether or
// not any process had to be terminated.
type GuardFinished struct {
	RunID      string
	Terminated int
	Warning    error
}

func (GuardFinished) Name() string { return EventGuardFinished }

// PluginSkipped is published for plugins that are fresh and require no build.
type PluginSkipped struct {
	RunID  string
	Plugin string
	Reason fingerprint.StaleReason
}

func (PluginSkipped) Name() string { return EventPluginSkipped }

// TaskStarted is published when a plugin transitions to Building.
type TaskStarted struct {
	RunID  string
	Plugin string
	Reason fingerprint.StaleReason
}

func (TaskStarted) Name() string { return EventTaskStarted }

// StepStarted forwards a named backend step transition. The orchestrator
// does not interpret steps, only relays them.
type StepStarted struct {
	RunID  string
	Plugin string
	Step   string
}

func (StepStarted) Name() string { return EventStepStarted }

// TaskCompleted is published when a plugin build finishes successfully or
// a stale plugin is satisfied from an existing artifact in no-rebuild mode.
type TaskCompleted struct {
	RunID    string
	Plugin   string
	Cached   bool
	Duration time.Duration
}

func (TaskCompleted) Name() string { return EventTaskCompleted }

// TaskFailed is published when a plugin's backend reports failure.
type TaskFailed struct {
	RunID    string
	Plugin   string
	Err      error
	Duration time.Duration
}

func (TaskFailed) Name() string { return EventTaskFailed }

// RunCompleted carries the final per-plugin outcome of a run.
type RunCompleted struct {
	RunID    string
	Result   *Result
	Duration time.Duration
}

func (RunCompleted) Name() string { return EventRunCompleted }
