// Package widgets renders small lipgloss pieces for the monitor.
package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-drumbank/bank"
	"go-drumbank/theme"
)

// Semitones names the pitch classes in table order
var Semitones = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// RenderPad renders a single colored pad
func RenderPad(color theme.RGB, glyph string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(rgbToHex(color)))
	return style.Render(glyph)
}

// RenderPitchRow renders one pad per semitone of a pitch table, glyph by
// shift direction, colored through the palette by code.
func RenderPitchRow(t bank.PitchTable, p *theme.Palette) string {
	var names, pads strings.Builder
	for s := range Semitones {
		if s > 0 {
			names.WriteString(" ")
			pads.WriteString(" ")
		}
		code := t.Code(s)
		glyph := "·"
		switch t.Shift(s) {
		case -1:
			glyph = "↓"
		case 1:
			glyph = "↑"
		}
		names.WriteString(fmt.Sprintf("%-2s", Semitones[s]))
		pads.WriteString(RenderPad(p.Lookup(0.4+0.2*float64(code)), glyph) + " ")
	}
	return names.String() + "\n" + pads.String()
}

// RenderKeyHelp formats key bindings on one line per section
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		parts := make([]string, 0, len(sec.Keys))
		for _, k := range sec.Keys {
			parts = append(parts, k.Key+":"+k.Desc)
		}
		line := strings.Join(parts, "  ")
		if sec.Title != "" {
			line = sec.Title + "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

func rgbToHex(c theme.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
