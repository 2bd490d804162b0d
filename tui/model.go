package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-drumbank/bank"
	"go-drumbank/engine"
	"go-drumbank/midi"
	"go-drumbank/stream"
	"go-drumbank/theme"
	"go-drumbank/widgets"
)

// Engine is the part of engine.Engine the monitor drives
type Engine interface {
	Snapshot() []engine.TrackStatus
	Submit(ev engine.Event) bool
	SetMuted(track int, muted bool)
}

// Memory reports arena occupancy
type Memory interface {
	Used() int
	Capacity() int
}

type Model struct {
	Engine   Engine
	Updates  <-chan struct{}
	Memory   Memory
	Stats    func() stream.Stats
	Presets  *bank.Presets
	Feed     *Feed
	Devices  *midi.DeviceManager // may be nil
	Theme    *theme.Theme
	focused  int
	inputs   []string
	quitting bool
}

type UpdateMsg struct{}

type FeedMsg struct{}

type DeviceEventMsg midi.DeviceEvent

func ListenForUpdates(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return UpdateMsg{}
	}
}

func ListenForFeed(f *Feed) tea.Cmd {
	return func() tea.Msg {
		<-f.Updates
		return FeedMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Updates)}
	if m.Feed != nil {
		cmds = append(cmds, ListenForFeed(m.Feed))
	}
	if m.Devices != nil {
		cmds = append(cmds, ListenForDevices(m.Devices))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		tracks := m.Engine.Snapshot()
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.focused > 0 {
				m.focused--
			}

		case "down", "j":
			if m.focused < len(tracks)-1 {
				m.focused++
			}

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			if idx := int(msg.String()[0] - '1'); idx < len(tracks) {
				m.focused = idx
			}

		case "m":
			if m.focused < len(tracks) {
				m.Engine.SetMuted(m.focused, !tracks[m.focused].Muted)
			}

		case "[", "]":
			if m.focused < len(tracks) {
				m.Engine.Submit(engine.ProgramEvent{Track: m.focused, Program: m.stepDrumType(tracks[m.focused], msg.String() == "]")})
			}

		case "a":
			if m.focused < len(tracks) {
				st := tracks[m.focused]
				m.Engine.Submit(engine.ProgramEvent{Track: m.focused, Program: bank.Program(st.DrumType, (st.Alt+1)%bank.AltSets)})
			}

		case " ":
			if m.focused < len(tracks) {
				note := uint8(0)
				if n := tracks[m.focused].LastNote; n >= 0 {
					note = uint8(n)
				}
				m.Engine.Submit(engine.NoteEvent{Track: m.focused, Note: note, Velocity: 100})
			}
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Updates)

	case FeedMsg:
		return m, ListenForFeed(m.Feed)

	case DeviceEventMsg:
		m.inputs = m.Devices.Inputs()
		return m, ListenForDevices(m.Devices)
	}

	return m, nil
}

// stepDrumType returns the program for the next or previous known drum type
func (m Model) stepDrumType(st engine.TrackStatus, forward bool) uint8 {
	types := m.Presets.Types()
	if len(types) == 0 {
		return bank.Program(st.DrumType, st.Alt)
	}
	pos := 0
	for i, dt := range types {
		if dt == st.DrumType {
			pos = i
		}
	}
	if !st.HasBank {
		return bank.Program(types[pos], 0)
	}
	if forward {
		pos = (pos + 1) % len(types)
	} else {
		pos = (pos - 1 + len(types)) % len(types)
	}
	return bank.Program(types[pos], 0)
}

func (m Model) meter(width int) string {
	if m.Memory == nil || m.Memory.Capacity() == 0 {
		return ""
	}
	filled := m.Memory.Used() * width / m.Memory.Capacity()
	return strings.Repeat(string(m.Theme.Symbols.Meter), filled) +
		strings.Repeat(string(m.Theme.Symbols.MeterOff), width-filled)
}

func (m Model) trackLine(st engine.TrackStatus) string {
	sym := m.Theme.Symbols
	mark := sym.NoBank
	switch {
	case st.Muted:
		mark = sym.Muted
	case st.ResidentIndex >= 0:
		mark = sym.Resident
	case st.HasBank:
		mark = sym.Empty
	}

	bankDesc := "no bank"
	if st.HasBank {
		bankDesc = fmt.Sprintf("%-10s alt %d  [%3d,%3d]", st.BankName, st.Alt, st.Min, st.Max)
	}
	resident := "           "
	if st.ResidentIndex >= 0 {
		resident = fmt.Sprintf("%3d v%-3d %s", st.ResidentIndex, st.ResidentVoice, kb(st.ResidentBytes))
	}
	return fmt.Sprintf("%c %-8s ch%-2d  %-28s  %s  hits %-5d fail %d",
		mark, st.Name, st.Channel, bankDesc, resident, st.Triggers, st.Failures)
}

func kb(n int) string {
	return fmt.Sprintf("%.1fk", float64(n)/1024)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	focusStyle := lipgloss.NewStyle().Foreground(m.Theme.Success()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	errStyle := lipgloss.NewStyle().Foreground(m.Theme.Error())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	used, capacity := 0, 0
	if m.Memory != nil {
		used, capacity = m.Memory.Used(), m.Memory.Capacity()
	}
	header := headerStyle.Render(fmt.Sprintf("drumbank  arena %s/%s %s", kb(used), kb(capacity), m.meter(20)))

	var stats string
	if m.Stats != nil {
		s := m.Stats()
		stats = dimStyle.Render(fmt.Sprintf("loads %d  resident %d  superseded %d  failed %d  chunks %d  retries %d",
			s.Loads, s.Committed, s.Superseded, s.Failed, s.Chunks, s.Retries))
	}

	tracks := m.Engine.Snapshot()
	var rows []string
	for i, st := range tracks {
		line := m.trackLine(st)
		if i == m.focused {
			rows = append(rows, focusStyle.Render("> "+line))
		} else {
			rows = append(rows, fgStyle.Render("  "+line))
		}
	}

	var pitch string
	if m.focused < len(tracks) && tracks[m.focused].HasBank {
		if p, ok := m.Presets.Get(tracks[m.focused].DrumType); ok {
			pitch = widgets.RenderPitchRow(p.Table, m.Theme.Palette)
		}
	}

	var diag []string
	if m.Feed != nil {
		for _, e := range m.Feed.Latest(6) {
			style := dimStyle
			switch {
			case e.Report.Op == "superseded":
				style = warnStyle
			case e.Report.Err != nil:
				style = errStyle
			}
			diag = append(diag, style.Render(e.String()))
		}
	}

	inputs := "inputs: none"
	if len(m.inputs) > 0 {
		inputs = "inputs: " + strings.Join(m.inputs, ", ")
	}

	// Help line
	help := dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{
		{Keys: []widgets.KeyBinding{
			{Key: "j/k", Desc: "track"},
			{Key: "m", Desc: "mute"},
			{Key: "[/]", Desc: "drum type"},
			{Key: "a", Desc: "alt set"},
			{Key: "space", Desc: "audition"},
			{Key: "q", Desc: "quit"},
		}},
	}))

	// Build output
	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(stats)
	out.WriteString("\n\n")
	out.WriteString(strings.Join(rows, "\n"))
	if pitch != "" {
		out.WriteString("\n\n")
		out.WriteString(pitch)
	}
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render(inputs))
	if len(diag) > 0 {
		out.WriteString("\n\n")
		out.WriteString(strings.Join(diag, "\n"))
	}
	out.WriteString("\n\n")
	out.WriteString(help)

	return out.String()
}
