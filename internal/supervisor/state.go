package supervisor

// State is the lifecycle state of the supervised process.
type State int

const (
	// StateStopped means no process is running.
	StateStopped State = iota
	// StateStarting means a process was spawned and is inside its startup window.
	StateStarting
	// StateRunning means the process survived startup and its stdio is attached.
	StateRunning
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}
