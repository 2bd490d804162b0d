package midi

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-drumbank/debug"
)

// DeviceManager handles hot-plug detection of MIDI inputs. Every matching
// input port is opened and routed into the sink.
type DeviceManager struct {
	inputs   map[string]*Input
	mu       sync.RWMutex
	events   chan DeviceEvent
	pollRate time.Duration

	router  *Router
	sink    Sink
	filters []string
	ports   func() []Port
	listen  Listener
}

// Option configures a DeviceManager
type Option func(*DeviceManager)

// WithPollRate sets how often ports are rescanned
func WithPollRate(d time.Duration) Option {
	return func(dm *DeviceManager) { dm.pollRate = d }
}

// WithPortFilter only opens ports whose name contains one of the substrings
// (case-insensitive). No filters opens every input.
func WithPortFilter(substrings ...string) Option {
	return func(dm *DeviceManager) {
		for _, s := range substrings {
			if s = strings.TrimSpace(s); s != "" {
				dm.filters = append(dm.filters, strings.ToLower(s))
			}
		}
	}
}

// WithPorts replaces the port lister and listener, mainly for tests
func WithPorts(ports func() []Port, listen Listener) Option {
	return func(dm *DeviceManager) {
		dm.ports = ports
		dm.listen = listen
	}
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(r *Router, sink Sink, opts ...Option) *DeviceManager {
	dm := &DeviceManager{
		inputs:   make(map[string]*Input),
		events:   make(chan DeviceEvent, 16),
		pollRate: time.Second,
		router:   r,
		sink:     sink,
		ports:    driverPorts,
		listen:   ListenDriver,
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Inputs returns the ids of the open inputs, sorted
func (dm *DeviceManager) Inputs() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := make([]string, 0, len(dm.inputs))
	for id := range dm.inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return nil
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) matches(name string) bool {
	if len(dm.filters) == 0 {
		return true
	}
	name = strings.ToLower(name)
	for _, f := range dm.filters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	debug.Log("midi", "input %s %s %v", ev.ID, ev.Type, ev.Err)
	select {
	case dm.events <- ev:
	default:
	}
}

func (dm *DeviceManager) scan() {
	ports := dm.ports()
	if ports == nil {
		// lister timed out, keep what we have
		return
	}

	seenIDs := make(map[string]bool)
	for _, p := range ports {
		id := p.String()
		if !dm.matches(id) {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.inputs[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		in, err := OpenInput(p, dm.listen, dm.router, dm.sink)
		if err != nil {
			dm.emit(DeviceEvent{Type: DeviceFailed, ID: id, Err: err})
			continue
		}
		dm.mu.Lock()
		dm.inputs[id] = in
		dm.mu.Unlock()
		dm.emit(DeviceEvent{Type: DeviceConnected, ID: id})
	}

	// Check for disconnects
	dm.mu.Lock()
	var gone []string
	for id, in := range dm.inputs {
		if !seenIDs[id] {
			in.Close()
			delete(dm.inputs, id)
			gone = append(gone, id)
		}
	}
	dm.mu.Unlock()
	for _, id := range gone {
		dm.emit(DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, in := range dm.inputs {
		in.Close()
	}
	dm.inputs = make(map[string]*Input)
}

// driverPorts lists driver inputs. It returns nil if the driver does not
// answer within three seconds (CoreMIDI can hang).
func driverPorts() []Port {
	ch := make(chan []Port, 1)
	go func() {
		var ports []Port
		for _, in := range gomidi.GetInPorts() {
			ports = append(ports, in)
		}
		ch <- ports
	}()

	select {
	case ports := <-ch:
		if ports == nil {
			ports = []Port{}
		}
		return ports
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return nil
	}
}
