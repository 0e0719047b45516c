// Package relay pushes produced moves to the automation layer that drives the
// mouse. Payloads carry screen coordinates so the receiver needs no board
// geometry of its own.
package relay

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MovePayload is sent once per non-stale cycle.
type MovePayload struct {
	Type      string `json:"type"`
	GameID    string `json:"game_id"`
	CycleID   string `json:"cycle_id"`
	Seq       uint64 `json:"seq"`
	Move      string `json:"move,omitempty"`
	From      *Point `json:"from,omitempty"`
	To        *Point `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	FEN       string `json:"fen"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Ack is what the receiver answers, over HTTP or as a websocket frame.
type Ack struct {
	CycleID string `json:"cycle_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}
