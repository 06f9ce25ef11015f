package session

// State is the lifecycle state of a [Machine].
type State int

const (
	// Idle means no session is active. Start is only accepted here.
	Idle State = iota

	// Connecting means the microphone, the output context and the remote
	// session are being opened.
	Connecting

	// Listening means the remote session is open and audio flows both ways.
	Listening

	// Closing means Stop was requested and the machine waits for the remote
	// end to confirm the close.
	Closing

	// Errored is entered on a fatal error. Teardown runs immediately and the
	// machine returns to Idle.
	Errored
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Closing:
		return "closing"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}
