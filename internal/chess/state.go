package chess

type State int32

const (
	StateNotStarted State = iota
	StateReady
	StateBusy
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}
