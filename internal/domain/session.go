package domain

// SessionState is the coordinator session lifecycle position.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateAuthPending
	StateLoggedOn
	StateAwaitingCoordinator
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateLoggedOn:
		return "logged_on"
	case StateAwaitingCoordinator:
		return "awaiting_coordinator"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Connected reports whether the transport is up in this state.
func (s SessionState) Connected() bool {
	return s > StateConnecting
}
