package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCycleID    = "cycle_id"
	KeyState      = "state"
	KeyRevision   = "revision"
	KeyRemoteRev  = "remote_revision"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyBranch     = "branch"
	KeySource     = "source"
	KeyPID        = "pid"
	KeyExitCode   = "exit_code"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyAttempt    = "attempt"
	KeyField      = "field"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func CycleID(id string) slog.Attr       { return slog.String(KeyCycleID, id) }
func State(s string) slog.Attr          { return slog.String(KeyState, s) }
func Revision(r string) slog.Attr       { return slog.String(KeyRevision, ShortRev(r)) }
func RemoteRevision(r string) slog.Attr { return slog.String(KeyRemoteRev, ShortRev(r)) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func Branch(b string) slog.Attr         { return slog.String(KeyBranch, b) }
func Source(s string) slog.Attr         { return slog.String(KeySource, s) }
func PID(pid int) slog.Attr             { return slog.Int(KeyPID, pid) }
func ExitCode(code int) slog.Attr       { return slog.Int(KeyExitCode, code) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr           { return slog.Int(KeyAttempt, n) }
func Field(name string) slog.Attr       { return slog.String(KeyField, name) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ShortRev trims a commit hash to the 8 characters used in log lines.
func ShortRev(r string) string {
	if len(r) > 8 {
		return r[:8]
	}
	return r
}
