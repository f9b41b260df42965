// internal/model/lifecycle.go
package model

// RunState is a running/stopped value that may also be unknown
type RunState int

const (
	RunUnknown RunState = iota
	RunStopped
	RunRunning
)

func (s RunState) String() string {
	switch s {
	case RunStopped:
		return "stopped"
	case RunRunning:
		return "running"
	default:
		return "unknown"
	}
}

// RunStateOf converts a backend-reported boolean
func RunStateOf(running bool) RunState {
	if running {
		return RunRunning
	}
	return RunStopped
}

// Phase is the lifecycle phase shown to the user
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// LifecycleState tracks desired vs. confirmed state of a remote process
type LifecycleState struct {
	Desired         RunState
	Confirmed       RunState
	UserInitiated   bool
	PersistedIntent bool
	Phase           Phase
}

// Running reports whether the session currently wants the process running
func (s LifecycleState) Running() bool {
	return s.Desired == RunRunning
}
