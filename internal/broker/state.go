package broker

// State is a connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
	StateOffline      State = "offline"
	StateReconnecting State = "reconnecting"

	// StateTerminated is reached when reconnect attempts are exhausted.
	// No further automatic attempts are made.
	StateTerminated State = "terminated"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}
