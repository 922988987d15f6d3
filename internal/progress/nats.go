package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
)

// NATSReporter publishes orchestrator events to a NATS subject so external
// tooling (dashboards, CI listeners) can follow builds. Publishing is
// fire-and-forget; a broker outage never affects the build.
type NATSReporter struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// wireEvent is the published payload shape.
type wireEvent struct {
	Event    string    `json:"event"`
	RunID    string    `json:"run_id,omitempty"`
	Plugin   string    `json:"plugin,omitempty"`
	Step     string    `json:"step,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	Success  *bool     `json:"success,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// NewNATSReporter connects to the broker. The connection is retried in the
// background by the NATS client itself.
func NewNATSReporter(url, subject string) (*NATSReporter, error) {
	conn, err := nats.Connect(url,
		nats.Name("plugbuild"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS progress reporter connected", logfields.URL(url), slog.String("subject", subject))
	return &NATSReporter{conn: conn, subject: subject, logger: slog.Default()}, nil
}

// Attach subscribes the reporter to a bus.
func (r *NATSReporter) Attach(bus *orchestrator.Bus) {
	bus.SubscribeAll(r.Handle)
}

// Close drains the connection.
func (r *NATSReporter) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *NATSReporter) Handle(e orchestrator.Event) error {
	msg := wireEvent{Event: e.Name(), Occurred: time.Now().UTC()}
	switch ev := e.(type) {
	case orchestrator.RunStarted:
		msg.RunID = ev.RunID
	case orchestrator.PluginSkipped:
		msg.RunID, msg.Plugin, msg.Reason = ev.RunID, ev.Plugin, string(ev.Reason)
	case orchestrator.TaskStarted:
		msg.RunID, msg.Plugin, msg.Reason = ev.RunID, ev.Plugin, string(ev.Reason)
	case orchestrator.StepStarted:
		msg.RunID, msg.Plugin, msg.Step = ev.RunID, ev.Plugin, ev.Step
	case orchestrator.TaskCompleted:
		msg.RunID, msg.Plugin = ev.RunID, ev.Plugin
	case orchestrator.TaskFailed:
		msg.RunID, msg.Plugin = ev.RunID, ev.Plugin
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	case orchestrator.RunCompleted:
		msg.RunID = ev.RunID
		msg.Success = &ev.Result.OverallSuccess
	default:
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	if err := r.conn.Publish(r.subject, data); err != nil {
		r.logger.Debug("Failed to publish progress event", logfields.Error(err))
	}
	return nil
}
