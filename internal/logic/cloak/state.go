package cloak

// State is a step of the session lifecycle.
type State int32

const (
	Init State = iota
	CapturingBackground
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case CapturingBackground:
		return "CAPTURING_BACKGROUND"
	case Running:
		return "RUNNING"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Frames       uint64  `json:"frames"`        // frames composited and shown
	ReadFailures uint64  `json:"read_failures"` // failed or rejected reads while running
	Consecutive  uint64  `json:"consecutive"`   // failures since the last good frame
	Coverage     float64 `json:"coverage"`      // cloak fraction of the last frame, 0-1
}
