package process

// Status is the lifecycle state of a supervised process.
type Status int

const (
	Stopped Status = iota
	Starting
	Running
	Errored
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Code returns the wire representation of the status. The numbering is part
// of the socket protocol and must not change.
func (s Status) Code() uint8 {
	switch s {
	case Stopped:
		return 0
	case Running:
		return 1
	case Errored:
		return 2
	case Starting:
		return 3
	default:
		return 0
	}
}

// StatusFromCode is the inverse of Code. Unknown codes map to Stopped.
func StatusFromCode(c uint8) Status {
	switch c {
	case 1:
		return Running
	case 2:
		return Errored
	case 3:
		return Starting
	default:
		return Stopped
	}
}

// Alive reports whether the status implies a live OS process handle.
func (s Status) Alive() bool { return s == Starting || s == Running }
