package build

// Result is the outcome of the build step of an update cycle.
type Result string

const (
	// UpToDate means no build ran; the installed artifact is current.
	UpToDate Result = "up_to_date"
	// BuiltOk means the toolchain succeeded and the artifact was installed.
	BuiltOk Result = "built_ok"
	// BuildFailed means the toolchain failed or produced no artifact.
	BuildFailed Result = "build_failed"
)

// IsSuccess reports whether the cycle may go on to launch the daemon.
func (r Result) IsSuccess() bool { return r == UpToDate || r == BuiltOk }

func (r Result) String() string { return string(r) }
