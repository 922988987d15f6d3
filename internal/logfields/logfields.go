package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPlugin     = "plugin"
	KeyRunID      = "run_id"
	KeyStep       = "step"
	KeyStatus     = "status"
	KeyPath       = "path"
	KeyName       = "name"
	KeyURL        = "url"
	KeyPID        = "pid"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Plugin(name string) slog.Attr    { return slog.String(KeyPlugin, name) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
