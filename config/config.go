package config

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go-drumbank/bank"
	"go-drumbank/engine"
	"go-drumbank/stream"
)

// ArenaConfig bounds resident sample memory
type ArenaConfig struct {
	Capacity int `json:"capacity"`
	Ceiling  int `json:"ceiling"` // largest single payload
}

// StreamConfig tunes sample loading
type StreamConfig struct {
	ChunkSize   int    `json:"chunkSize"`
	HeaderSize  int    `json:"headerSize"`
	ReadRetries int    `json:"readRetries"`
	SampleRate  uint32 `json:"sampleRate"`
	BitDepth    uint16 `json:"bitDepth"`
	MaxChannels uint16 `json:"maxChannels"`
	ByteOrder   string `json:"byteOrder,omitempty"` // "little" (default) or "big"
}

// TrackConfig is one drum track
type TrackConfig struct {
	Name    string `json:"name,omitempty"`
	Channel uint8  `json:"channel"`           // MIDI channel 1-16
	Program *uint8 `json:"program,omitempty"` // bank selected at startup
}

// PresetConfig overrides the pitch table for a drum type
type PresetConfig struct {
	DrumType uint8  `json:"drumType"`
	Name     string `json:"name"`
	Table    string `json:"table"` // e.g. "0x555555"
}

// SampleSetConfig places one drum type's alternate set in storage
type SampleSetConfig struct {
	DrumType uint8          `json:"drumType"`
	Alt      uint8          `json:"alt"`
	File     string         `json:"file"`
	Assets   []bank.Asset   `json:"assets"`
	Voices   []bank.VoiceID `json:"voices,omitempty"`
}

// InputConfig selects MIDI inputs
type InputConfig struct {
	Ports  []string `json:"ports,omitempty"` // name substrings, empty opens all
	PollMs int      `json:"pollMs,omitempty"`
	Inbox  int      `json:"inbox,omitempty"`
}

// OutputConfig drives the audio output
type OutputConfig struct {
	Enabled  bool `json:"enabled"`
	BufferMs int  `json:"bufferMs,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	StorageDir string            `json:"storageDir,omitempty"`
	Arena      ArenaConfig       `json:"arena"`
	Stream     StreamConfig      `json:"stream"`
	Tracks     []TrackConfig     `json:"tracks"`
	Presets    []PresetConfig    `json:"presets,omitempty"`
	SampleSets []SampleSetConfig `json:"sampleSets,omitempty"`
	Input      InputConfig       `json:"input,omitempty"`
	Output     OutputConfig      `json:"output"`
	Debug      bool              `json:"debug,omitempty"`
}

func program(p uint8) *uint8 { return &p }

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	sc := stream.DefaultConfig()
	return &Config{
		Arena: ArenaConfig{
			Capacity: 32 << 20,
			Ceiling:  4 << 20,
		},
		Stream: StreamConfig{
			ChunkSize:   sc.ChunkSize,
			HeaderSize:  sc.HeaderSize,
			ReadRetries: sc.ReadRetries,
			SampleRate:  sc.Format.SampleRate,
			BitDepth:    sc.Format.BitDepth,
			MaxChannels: sc.Format.MaxChannels,
			ByteOrder:   "little",
		},
		Tracks: []TrackConfig{
			{Name: "Kick", Channel: 10, Program: program(bank.Program(bank.DrumKick, 0))},
			{Name: "Snare", Channel: 11, Program: program(bank.Program(bank.DrumSnare, 0))},
			{Name: "Hats", Channel: 12, Program: program(bank.Program(bank.DrumClosedHat, 0))},
			{Name: "Perc", Channel: 13, Program: program(bank.Program(bank.DrumPerc, 0))},
		},
		Input:  InputConfig{PollMs: 1000, Inbox: engine.DefaultConfig().Inbox},
		Output: OutputConfig{Enabled: true, BufferMs: 20},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "drumbank"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file over the defaults. A missing file yields the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config")
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if cfg.StorageDir != "" && !filepath.IsAbs(cfg.StorageDir) {
		cfg.StorageDir = filepath.Join(filepath.Dir(path), cfg.StorageDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", path)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating the directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write config")
}

// Validate checks bounds the rest of the program relies on
func (c *Config) Validate() error {
	if c.Arena.Ceiling <= 0 || c.Arena.Ceiling >= c.Arena.Capacity {
		return errors.Errorf("arena ceiling %d must be positive and below capacity %d", c.Arena.Ceiling, c.Arena.Capacity)
	}
	switch strings.ToLower(c.Stream.ByteOrder) {
	case "", "little", "big":
	default:
		return errors.Errorf("byte order %q must be little or big", c.Stream.ByteOrder)
	}
	if len(c.Tracks) == 0 {
		return errors.New("at least one track is required")
	}
	channels := map[uint8]int{}
	for i, t := range c.Tracks {
		if t.Channel < 1 || t.Channel > 16 {
			return errors.Errorf("track %d: channel %d out of range 1-16", i, t.Channel)
		}
		if prev, dup := channels[t.Channel]; dup {
			return errors.Errorf("tracks %d and %d share channel %d", prev, i, t.Channel)
		}
		channels[t.Channel] = i
	}
	if _, err := c.BankPresets(); err != nil {
		return err
	}
	seen := map[uint8]bool{}
	for i, s := range c.SampleSets {
		if s.Alt >= bank.AltSets {
			return errors.Errorf("sample set %d: alt %d out of range 0-%d", i, s.Alt, bank.AltSets-1)
		}
		if s.DrumType > 0xFF>>bank.AltBits {
			return errors.Errorf("sample set %d: drum type %d does not fit a program byte", i, s.DrumType)
		}
		if s.File == "" {
			return errors.Errorf("sample set %d: no file", i)
		}
		if len(s.Assets) > bank.MaxSamples {
			return errors.Errorf("sample set %d: %d assets exceeds %d", i, len(s.Assets), bank.MaxSamples)
		}
		key := bank.Program(bank.DrumType(s.DrumType), s.Alt)
		if seen[key] {
			return errors.Errorf("sample set %d: drum type %d alt %d defined twice", i, s.DrumType, s.Alt)
		}
		seen[key] = true
	}
	return nil
}

// ParseTable reads a pitch table word in any base strconv accepts
func ParseTable(s string) (bank.PitchTable, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "pitch table %q", s)
	}
	if v>>24 != 0 {
		return 0, errors.Errorf("pitch table %q uses bits above the 12 semitone codes", s)
	}
	return bank.PitchTable(v), nil
}

// BankPresets builds the immutable preset table: factory presets with any
// configured overrides applied.
func (c *Config) BankPresets() (*bank.Presets, error) {
	factory := bank.DefaultPresets()
	table := make(map[bank.DrumType]bank.Preset, factory.Len()+len(c.Presets))
	for _, dt := range factory.Types() {
		table[dt], _ = factory.Get(dt)
	}
	for i, p := range c.Presets {
		t, err := ParseTable(p.Table)
		if err != nil {
			return nil, errors.Wrapf(err, "preset %d", i)
		}
		if p.DrumType > 0xFF>>bank.AltBits {
			return nil, errors.Errorf("preset %d: drum type %d does not fit a program byte", i, p.DrumType)
		}
		table[bank.DrumType(p.DrumType)] = bank.Preset{Name: p.Name, Table: t}
	}
	return bank.NewPresets(table), nil
}

// StreamerConfig converts the stream section
func (c *Config) StreamerConfig() stream.Config {
	sc := stream.Config{
		ChunkSize:   c.Stream.ChunkSize,
		HeaderSize:  c.Stream.HeaderSize,
		ReadRetries: c.Stream.ReadRetries,
		Format: stream.Format{
			SampleRate:  c.Stream.SampleRate,
			BitDepth:    c.Stream.BitDepth,
			MaxChannels: c.Stream.MaxChannels,
		},
		ByteOrder: binary.LittleEndian,
	}
	if strings.EqualFold(c.Stream.ByteOrder, "big") {
		sc.ByteOrder = binary.BigEndian
	}
	return sc
}

// EngineConfig converts the track and input sections
func (c *Config) EngineConfig() engine.Config {
	names := make([]string, len(c.Tracks))
	for i, t := range c.Tracks {
		names[i] = t.Name
	}
	return engine.Config{Tracks: len(c.Tracks), Inbox: c.Input.Inbox, Names: names, Channels: c.Channels()}
}

// Channels returns the MIDI channel of each track in order
func (c *Config) Channels() []uint8 {
	out := make([]uint8, len(c.Tracks))
	for i, t := range c.Tracks {
		out[i] = t.Channel
	}
	return out
}

// SampleSets indexes the configured sample sets by program byte
type SampleSets struct {
	byProgram map[uint8]bank.SampleSet
}

// BankSampleSets builds the lookup the engine uses
func (c *Config) BankSampleSets() *SampleSets {
	s := &SampleSets{byProgram: make(map[uint8]bank.SampleSet, len(c.SampleSets))}
	for _, sc := range c.SampleSets {
		s.byProgram[bank.Program(bank.DrumType(sc.DrumType), sc.Alt)] = bank.SampleSet{
			Ref:    sc.File,
			Assets: append([]bank.Asset(nil), sc.Assets...),
			Voices: append([]bank.VoiceID(nil), sc.Voices...),
		}
	}
	return s
}

// SampleSet implements engine.SampleSets
func (s *SampleSets) SampleSet(dt bank.DrumType, alt uint8) (bank.SampleSet, bool) {
	set, ok := s.byProgram[bank.Program(dt, alt)]
	return set, ok
}

// Len returns the number of sample sets
func (s *SampleSets) Len() int { return len(s.byProgram) }
