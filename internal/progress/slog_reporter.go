package progress

import (
	"log/slog"

	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
)

// SlogReporter mirrors orchestrator events into structured logs. It is
// mostly useful in watch mode and under the daemon-style metrics server,
// where terminal output is not the primary surface.
type SlogReporter struct {
	logger *slog.Logger
}

func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

// Attach subscribes the reporter to a bus.
func (r *SlogReporter) Attach(bus *orchestrator.Bus) {
	bus.SubscribeAll(r.Handle)
}

func (r *SlogReporter) Handle(e orchestrator.Event) error {
	switch ev := e.(type) {
	case orchestrator.PluginSkipped:
		r.logger.Debug("Plugin skipped", logfields.RunID(ev.RunID),
			logfields.Plugin(ev.Plugin), logfields.Status(string(ev.Reason)))
	case orchestrator.StepStarted:
		r.logger.Debug("Step started", logfields.RunID(ev.RunID),
			logfields.Plugin(ev.Plugin), logfields.Step(ev.Step))
	case orchestrator.TaskFailed:
		r.logger.Error("Task failed", logfields.RunID(ev.RunID),
			logfields.Plugin(ev.Plugin), logfields.Error(ev.Err))
	case orchestrator.RunCompleted:
		r.logger.Info("Run completed", logfields.RunID(ev.RunID),
			slog.Bool("success", ev.Result.OverallSuccess),
			slog.Int("built", ev.Result.Built),
			slog.Int("skipped", ev.Result.SkippedCount),
			slog.Int("failed", ev.Result.FailedCount))
	}
	return nil
}
