package midi

import "go-drumbank/engine"

// Port is a named MIDI port. drivers.In satisfies it.
type Port interface {
	String() string
}

// Sink receives translated events. engine.Engine satisfies it.
type Sink interface {
	Submit(ev engine.Event) bool
}

// DeviceEvent is emitted when inputs connect/disconnect
type DeviceEvent struct {
	Type DeviceEventType
	ID   string
	Err  error // set when a port was seen but could not be opened
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
	DeviceFailed
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	case DeviceFailed:
		return "failed"
	}
	return "unknown"
}
