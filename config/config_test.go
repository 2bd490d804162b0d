package config

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-drumbank/bank"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.Channels(); len(got) != 4 || got[0] != 10 || got[3] != 13 {
		t.Fatalf("Channels = %v", got)
	}
	if ec := cfg.EngineConfig(); ec.Tracks != 4 || ec.Inbox <= 0 || ec.Names[1] != "Snare" || ec.Channels[2] != 12 {
		t.Fatalf("EngineConfig = %+v", ec)
	}
	if sc := cfg.StreamerConfig(); sc.ByteOrder != binary.LittleEndian || sc.Format.SampleRate != 48000 {
		t.Fatalf("StreamerConfig = %+v", sc)
	}
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Arena.Capacity != DefaultConfig().Arena.Capacity {
		t.Fatalf("arena = %+v", cfg.Arena)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.json")

	cfg := DefaultConfig()
	cfg.StorageDir = "kits"
	cfg.Stream.ByteOrder = "big"
	cfg.Presets = []PresetConfig{{DrumType: 9, Name: "Rim", Table: "0x00000A"}}
	cfg.SampleSets = []SampleSetConfig{{
		DrumType: 9, Alt: 1, File: "rim.bin",
		Assets: []bank.Asset{{}, {}, {Offset: 0, Length: 100, Flags: bank.FlagChoke}},
		Voices: []bank.VoiceID{0, 0, 7},
	}}
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.StorageDir != filepath.Join(dir, "sub", "kits") {
		t.Fatalf("storage dir = %q, want it relative to the config file", got.StorageDir)
	}
	if got.StreamerConfig().ByteOrder != binary.BigEndian {
		t.Fatal("byte order lost")
	}

	presets, err := got.BankPresets()
	if err != nil {
		t.Fatalf("BankPresets: %v", err)
	}
	rim, ok := presets.Get(9)
	if !ok || rim.Name != "Rim" || rim.Table != 0x0A {
		t.Fatalf("preset 9 = %+v, %v", rim, ok)
	}
	if _, ok := presets.Get(bank.DrumKick); !ok {
		t.Fatal("factory presets dropped")
	}

	sets := got.BankSampleSets()
	set, ok := sets.SampleSet(9, 1)
	if !ok || set.Ref != "rim.bin" || len(set.Assets) != 3 || set.Voices[2] != 7 {
		t.Fatalf("sample set = %+v, %v", set, ok)
	}
	if _, ok := sets.SampleSet(9, 0); ok {
		t.Fatal("unconfigured alt found")
	}

	b, err := bank.New(9, 1, rim, set)
	if err != nil {
		t.Fatalf("bank.New: %v", err)
	}
	if min, max := b.Range(); min != 2 || max != 2 {
		t.Fatalf("range = [%d, %d], want [2, 2]", min, max)
	}
	if b.VoiceOf(b.Resolve(1)) != 7 {
		t.Fatalf("voice = %d", b.VoiceOf(b.Resolve(1)))
	}
}

func TestLoadFileBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("LoadFile = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ceiling above capacity", func(c *Config) { c.Arena.Ceiling = c.Arena.Capacity }},
		{"zero ceiling", func(c *Config) { c.Arena.Ceiling = 0 }},
		{"byte order", func(c *Config) { c.Stream.ByteOrder = "middle" }},
		{"no tracks", func(c *Config) { c.Tracks = nil }},
		{"channel 0", func(c *Config) { c.Tracks[0].Channel = 0 }},
		{"channel 17", func(c *Config) { c.Tracks[0].Channel = 17 }},
		{"shared channel", func(c *Config) { c.Tracks[1].Channel = c.Tracks[0].Channel }},
		{"bad table", func(c *Config) { c.Presets = []PresetConfig{{Table: "zz"}} }},
		{"wide table", func(c *Config) { c.Presets = []PresetConfig{{Table: "0x1000000"}} }},
		{"big drum type", func(c *Config) { c.Presets = []PresetConfig{{DrumType: 64, Table: "0"}} }},
		{"alt out of range", func(c *Config) { c.SampleSets = []SampleSetConfig{{Alt: 4, File: "x"}} }},
		{"no file", func(c *Config) { c.SampleSets = []SampleSetConfig{{}} }},
		{"duplicate set", func(c *Config) {
			c.SampleSets = []SampleSetConfig{{File: "a"}, {File: "b"}}
		}},
		{"too many assets", func(c *Config) {
			c.SampleSets = []SampleSetConfig{{File: "a", Assets: make([]bank.Asset, bank.MaxSamples+1)}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted")
			}
		})
	}
}

func TestParseTable(t *testing.T) {
	for in, want := range map[string]bank.PitchTable{
		"0x555555": 0x555555,
		"0":        0,
		" 0xAA ":   0xAA,
		"4096":     4096,
	} {
		got, err := ParseTable(in)
		if err != nil || got != want {
			t.Errorf("ParseTable(%q) = %#x, %v", in, got, err)
		}
	}
}
