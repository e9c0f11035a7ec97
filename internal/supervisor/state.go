package supervisor

// State is the lifecycle state of the supervised daemon.
type State int

const (
	Starting State = iota
	CheckingForUpdates
	Building
	Launching
	Running
	Crashed
)

// String returns the state's machine name, also used as the metrics label.
func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case CheckingForUpdates:
		return "checking_for_updates"
	case Building:
		return "building"
	case Launching:
		return "launching"
	case Running:
		return "running"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Text is the human-readable status shown to the host.
func (s State) Text() string {
	switch s {
	case Starting:
		return "Starting..."
	case CheckingForUpdates, Building, Launching:
		return "Updating..."
	case Running:
		return "Running..."
	default:
		return "Server has crashed. Please restart."
	}
}

// Updating reports whether an update cycle is in flight.
func (s State) Updating() bool {
	return s == CheckingForUpdates || s == Building || s == Launching
}
