package orchestrator

import (
	"time"

	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// TaskStatus represents one plugin's position in the build state machine.
type TaskStatus string

const (
	// StatusPending means the task exists but no staleness decision has been
	// acted on yet.
	StatusPending TaskStatus = "pending"

	// StatusBuilding means the external backend is running.
	StatusBuilding TaskStatus = "building"

	// StatusComplete means the plugin is up to date, either freshly built or
	// skipped because nothing changed.
	StatusComplete TaskStatus = "complete"

	// StatusFailed means the backend reported or raised a failure.
	StatusFailed TaskStatus = "failed"
)

// IsTerminal returns true for states from which no transition is legal.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Task is one plugin's run-time state. Tasks are created at orchestration
// start for every selected plugin and discarded with the run.
type Task struct {
	Plugin      workspace.Plugin
	Status      TaskStatus
	Reason      fingerprint.StaleReason
	CurrentStep string
	Skipped     bool // Complete without backend dispatch
	Cached      bool // Complete from an existing artifact in no-rebuild mode
	Err         error
	StartedAt   time.Time
	Duration    time.Duration
}

func newTask(plugin workspace.Plugin) *Task {
	return &Task{Plugin: plugin, Status: StatusPending}
}

// Outcome is the externally visible result for one plugin.
type Outcome struct {
	Status  TaskStatus              `json:"status"`
	Reason  fingerprint.StaleReason `json:"reason"`
	Skipped bool                    `json:"skipped"`
	Cached  bool                    `json:"cached,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// Result is the final summary of an orchestration run. OverallSuccess is
// true iff no task finished Failed; skipped plugins count as success.
type Result struct {
	RunID          string             `json:"run_id"`
	PerPlugin      map[string]Outcome `json:"per_plugin"`
	OverallSuccess bool               `json:"overall_success"`
	Built          int                `json:"built"`
	SkippedCount   int                `json:"skipped"`
	FailedCount    int                `json:"failed"`
	Duration       time.Duration      `json:"duration"`
}

func summarize(runID string, tasks []*Task, duration time.Duration) *Result {
	result := &Result{
		RunID:          runID,
		PerPlugin:      make(map[string]Outcome, len(tasks)),
		OverallSuccess: true,
		Duration:       duration,
	}
	for _, task := range tasks {
		outcome := Outcome{
			Status:  task.Status,
			Reason:  task.Reason,
			Skipped: task.Skipped,
			Cached:  task.Cached,
		}
		if task.Err != nil {
			outcome.Error = task.Err.Error()
		}
		switch {
		case task.Status == StatusFailed:
			result.FailedCount++
			result.OverallSuccess = false
		case task.Skipped || task.Cached:
			result.SkippedCount++
		case task.Status == StatusComplete:
			result.Built++
		}
		result.PerPlugin[task.Plugin.ID] = outcome
	}
	return result
}
