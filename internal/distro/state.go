package distro

// State is where the guest distribution is in its session lifecycle.
//
//	Absent → Registering → Registered → Running → Terminating → Terminated
//
// Terminated returns to Registered, never Absent, on the next EnsureRunning:
// registration lives on disk and outlasts the session.
type State int

const (
	StateAbsent State = iota
	StateRegistering
	StateRegistered
	StateRunning
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
