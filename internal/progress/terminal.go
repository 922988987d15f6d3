// Package progress turns orchestrator events into user-facing output:
// styled terminal lines, structured logs, and optionally NATS messages.
package progress

import (
	"fmt"
	"io"
	"time"

	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
)

// TerminalReporter renders orchestrator events as human-readable lines.
// With Plain set, styling is stripped for non-TTY output.
type TerminalReporter struct {
	w     io.Writer
	plain bool
	quiet bool

	total int
	done  int
}

// NewTerminalReporter creates a reporter writing to w.
func NewTerminalReporter(w io.Writer, plain, quiet bool) *TerminalReporter {
	return &TerminalReporter{w: w, plain: plain, quiet: quiet}
}

// Attach subscribes the reporter to a bus.
func (r *TerminalReporter) Attach(bus *orchestrator.Bus) {
	bus.SubscribeAll(r.Handle)
}

// Handle renders one event. It never returns an error; progress output must
// not influence the build outcome.
func (r *TerminalReporter) Handle(e orchestrator.Event) error {
	switch ev := e.(type) {
	case orchestrator.RunStarted:
		r.total = len(ev.Plugins)
		r.done = 0
		if ev.Force {
			r.printf("%s (%d plugins, forced)\n", r.style(styleTitle, "Building plugins"), len(ev.Plugins))
		} else {
			r.printf("%s (%d plugins)\n", r.style(styleTitle, "Building plugins"), len(ev.Plugins))
		}
	case orchestrator.GuardFinished:
		if ev.Terminated > 0 {
			r.printf("  %s stopped %d running process(es)\n", r.style(styleWarning, "!"), ev.Terminated)
		}
		if ev.Warning != nil {
			r.printf("  %s %v\n", r.style(styleWarning, "!"), ev.Warning)
		}
	case orchestrator.PluginSkipped:
		r.done++
		if !r.quiet {
			r.printf("  %s %s %s %s\n", r.style(styleSuccess, "-"),
				r.style(stylePlugin, ev.Plugin), r.style(styleMuted, "(up to date)"), r.fraction())
		}
	case orchestrator.TaskStarted:
		r.printf("  %s %s %s\n", r.style(styleTitle, ">"),
			r.style(stylePlugin, ev.Plugin), r.style(styleMuted, "("+string(ev.Reason)+")"))
	case orchestrator.StepStarted:
		if !r.quiet {
			r.printf("      %s\n", r.style(styleStep, ev.Step))
		}
	case orchestrator.TaskCompleted:
		r.done++
		if ev.Cached {
			r.printf("  %s %s %s %s\n", r.style(styleSuccess, "+"),
				r.style(stylePlugin, ev.Plugin), r.style(styleMuted, "(cached artifact)"), r.fraction())
		} else {
			r.printf("  %s %s %s %s\n", r.style(styleSuccess, "+"),
				r.style(stylePlugin, ev.Plugin), r.style(styleMuted, ev.Duration.Round(time.Millisecond).String()), r.fraction())
		}
	case orchestrator.TaskFailed:
		r.done++
		r.printf("  %s %s: %v %s\n", r.style(styleError, "x"), r.style(stylePlugin, ev.Plugin), ev.Err, r.fraction())
	case orchestrator.RunCompleted:
		res := ev.Result
		line := fmt.Sprintf("%d built, %d skipped, %d failed in %s",
			res.Built, res.SkippedCount, res.FailedCount, res.Duration.Round(time.Millisecond))
		if res.OverallSuccess {
			r.printf("%s %s\n", r.style(styleSuccess, "Done:"), line)
		} else {
			r.printf("%s %s\n", r.style(styleError, "Failed:"), line)
		}
	}
	return nil
}

// fraction renders the aggregate run progress for terminal task states.
func (r *TerminalReporter) fraction() string {
	return r.style(styleMuted, fmt.Sprintf("[%d/%d]", r.done, r.total))
}

func (r *TerminalReporter) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

func (r *TerminalReporter) style(s styled, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

type styled interface{ Render(...string) string }
