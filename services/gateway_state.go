package services

import "talent-chat/domain"

// State is the lifecycle step of one connection handled by the gateway.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateObserver is told about every state a connection enters.
// It is called from the connection goroutine and must not block.
type StateObserver func(room domain.RoomID, user domain.UserID, state State)
