package ble

import "fmt"

// StateKind enumerates the connection lifecycle states.
type StateKind int

const (
	Idle StateKind = iota
	Scanning
	Connecting
	Ready
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// State is the controller's connection state. Device is set only for Ready
// and Err only for Failed.
type State struct {
	Kind   StateKind
	Device Device
	Err    error
}

func idleState() State            { return State{Kind: Idle} }
func scanningState() State        { return State{Kind: Scanning} }
func connectingState() State      { return State{Kind: Connecting} }
func readyState(dev Device) State { return State{Kind: Ready, Device: dev} }
func failedState(err error) State { return State{Kind: Failed, Err: err} }

func (s State) String() string {
	switch s.Kind {
	case Ready:
		return fmt.Sprintf("ready(%s)", s.Device.Name)
	case Failed:
		return fmt.Sprintf("failed(%v)", s.Err)
	default:
		return s.Kind.String()
	}
}
