package midi

import (
	"fmt"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-drumbank/debug"
)

// Listener starts delivering a port's messages to fn and returns a stop func
type Listener func(p Port, fn func(gomidi.Message)) (stop func(), err error)

// ListenDriver is the Listener for real driver ports
func ListenDriver(p Port, fn func(gomidi.Message)) (func(), error) {
	in, ok := p.(drivers.In)
	if !ok {
		return nil, fmt.Errorf("port %s is not a driver input", p)
	}
	return gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		fn(msg)
	}, gomidi.HandleError(func(err error) {
		debug.Log("midi", "listener error on %s: %v", p, err)
	}))
}

// Input forwards one port's note and program messages to a sink
type Input struct {
	id     string
	stop   func()
	router *Router
	sink   Sink

	received atomic.Uint64
	dropped  atomic.Uint64
}

// OpenInput starts listening on a port
func OpenInput(p Port, listen Listener, r *Router, sink Sink) (*Input, error) {
	in := &Input{
		id:     p.String(),
		router: r,
		sink:   sink,
	}
	stop, err := listen(p, in.handle)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	in.stop = stop
	return in, nil
}

func (in *Input) handle(msg gomidi.Message) {
	ev, ok := in.router.Translate(msg)
	if !ok {
		return
	}
	in.received.Add(1)
	if !in.sink.Submit(ev) {
		in.dropped.Add(1)
	}
}

func (in *Input) ID() string {
	return in.id
}

// Stats returns how many events were forwarded and how many the sink refused
func (in *Input) Stats() (received, dropped uint64) {
	return in.received.Load(), in.dropped.Load()
}

func (in *Input) Close() error {
	if in.stop != nil {
		in.stop()
		in.stop = nil
	}
	return nil
}
