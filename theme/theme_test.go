package theme

import (
	"strings"
	"testing"
)

const gpl = `GIMP Palette
Name: Test
Columns: 2
# comment
  0   0   0	black
255 255 255	white
300 1 1	ignored
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	if err != nil {
		t.Fatalf("ParseGPL: %v", err)
	}
	if p.Name != "Test" || len(p.Colors) != 2 {
		t.Fatalf("palette = %+v", p)
	}
	if got := p.Lookup(0.5); got != (RGB{127, 127, 127}) {
		t.Fatalf("Lookup(0.5) = %v", got)
	}
	if p.Lookup(-1) != p.Colors[0] || p.Lookup(2) != p.Colors[1] {
		t.Fatal("Lookup does not clamp")
	}

	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n1 2 3\n")); err == nil {
		t.Fatal("single color palette accepted")
	}
}

func TestThemeColors(t *testing.T) {
	th := New(nil)
	if th.Palette.Name != "drumbank" {
		t.Fatalf("default palette = %q", th.Palette.Name)
	}
	if got := string(th.BG()); got != "#12141c" {
		t.Fatalf("BG = %s", got)
	}
	if th.Error() == th.FG() {
		t.Fatal("error and foreground share a color")
	}
}
