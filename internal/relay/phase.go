package relay

// Phase is the stage a connection has reached.
type Phase int

const (
	PhaseReading Phase = iota
	PhaseSelecting
	PhaseForwarding
	PhaseRelayingResponse
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseReading:
		return "reading"
	case PhaseSelecting:
		return "selecting"
	case PhaseForwarding:
		return "forwarding"
	case PhaseRelayingResponse:
		return "relaying_response"
	case PhaseClosed:
		return "closed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
