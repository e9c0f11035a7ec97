package metrics

import "time"

// Update check results.
const (
	CheckUpToDate     = "up_to_date"
	CheckUpdateNeeded = "update_needed"
	CheckFallback     = "fallback"
	CheckFailed       = "failed"
)

// Process exit reasons.
const (
	ExitRequested = "requested"
	ExitCrashed   = "crashed"
)

// Recorder defines the supervisor's observability hooks. Implementations must be safe
// for concurrent use.
type Recorder interface {
	SetSupervisorState(state string)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome string)
	IncUpdateCheck(result string)
	IncProcessExit(reason string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) SetSupervisorState(string)          {}
func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string)             {}
func (NoopRecorder) IncUpdateCheck(string)              {}
func (NoopRecorder) IncProcessExit(string)              {}
