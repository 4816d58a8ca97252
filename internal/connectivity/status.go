package connectivity

// State is the connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Status is the current State with an optional human-readable detail.
type Status struct {
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// IsConnected reports whether the link is live.
func (s Status) IsConnected() bool {
	return s.State == StateConnected
}

// IsConnecting reports whether a connect is in progress.
func (s Status) IsConnecting() bool {
	return s.State == StateConnecting
}

// needsReconnect reports whether s is a state the Controller retries from.
func (s Status) needsReconnect() bool {
	return s.State == StateDisconnected || s.State == StateError
}
