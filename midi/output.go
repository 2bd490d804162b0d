package midi

import (
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Sender delivers messages to an output port
type Sender func(gomidi.Message) error

// OpenOutput finds an output port whose name contains name and opens it
func OpenOutput(name string) (Sender, string, error) {
	want := strings.ToLower(name)
	for _, port := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(port.String()), want) {
			send, err := gomidi.SendTo(port)
			if err != nil {
				return nil, "", fmt.Errorf("open %s: %w", port, err)
			}
			return send, port.String(), nil
		}
	}
	return nil, "", fmt.Errorf("no output port matching %q", name)
}

// SelectBank sends the program change that selects a drum type and alternate
// sample set on a channel (1-16)
func SelectBank(send Sender, channel, program uint8) error {
	return send(gomidi.ProgramChange(channel-1, program))
}

// Hit sends a note-on followed by its note-off on a channel (1-16)
func Hit(send Sender, channel, note, velocity uint8) error {
	if err := send(gomidi.NoteOn(channel-1, note, velocity)); err != nil {
		return err
	}
	return send(gomidi.NoteOff(channel-1, note))
}

// PortNames lists input and output port names
func PortNames() (ins, outs []string) {
	for _, p := range gomidi.GetInPorts() {
		ins = append(ins, p.String())
	}
	for _, p := range gomidi.GetOutPorts() {
		outs = append(outs, p.String())
	}
	return ins, outs
}
