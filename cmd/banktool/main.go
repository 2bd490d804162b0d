package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-drumbank/bank"
	"go-drumbank/config"
	"go-drumbank/midi"
	"go-drumbank/storage"
	"go-drumbank/stream"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "presets":
		err = listPresets()
	case "probe":
		err = probe(args)
	case "pack":
		err = pack(args)
	case "demo":
		err = demo(args)
	case "ports":
		listPorts()
	case "play":
		err = play(args)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Drum bank tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  presets                          - Show pitch tables and their sample ranges")
	fmt.Println("  probe <file> [offset length]     - Parse and check a sample header")
	fmt.Println("  pack -out f.bin [-type n] wav... - Concatenate samples and print a sample set")
	fmt.Println("  demo <dir>                       - Write synthetic kits and a config into dir")
	fmt.Println("  ports                            - List MIDI ports")
	fmt.Println("  play <port> <ch> <prog> note...  - Select a bank and hit notes")
}

func listPresets() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	presets, err := cfg.BankPresets()
	if err != nil {
		return err
	}
	const names = "C C# D D# E F F# G G# A A# B"
	fmt.Printf("%-4s %-10s %-8s %-9s  %s\n", "type", "name", "table", "range", names)
	for _, dt := range presets.Types() {
		p, _ := presets.Get(dt)
		codes := make([]string, 12)
		for s := range codes {
			codes[s] = strconv.Itoa(int(p.Table.Code(s)))
		}
		rng := "degenerate"
		if min, max, err := bank.BuildRange(p.Table); err == nil {
			rng = fmt.Sprintf("[%d,%d]", min, max)
		}
		fmt.Printf("%-4d %-10s %#08x %-9s  %s\n", dt, p.Name, uint32(p.Table), rng, strings.Join(codes, " "))
	}
	return nil
}

func probe(args []string) error {
	if len(args) != 1 && len(args) != 3 {
		return fmt.Errorf("usage: probe <file> [offset length]")
	}
	dir, err := storage.NewDir(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	defer dir.Close()
	ref := filepath.Base(args[0])

	off, length := int64(0), int64(0)
	if len(args) == 3 {
		if off, err = strconv.ParseInt(args[1], 0, 64); err != nil {
			return fmt.Errorf("offset: %w", err)
		}
		if length, err = strconv.ParseInt(args[2], 0, 64); err != nil {
			return fmt.Errorf("length: %w", err)
		}
	} else if length, err = dir.Size(ref); err != nil {
		return err
	}

	sc := stream.DefaultConfig()
	n := int64(sc.HeaderSize)
	if n > length {
		n = length
	}
	buf := make([]byte, n)
	if err := dir.Read(context.Background(), ref, off, buf); err != nil {
		return err
	}
	h, err := stream.ParseHeader(buf)
	if err != nil {
		return err
	}
	fmt.Println(h)
	if h.PayloadOffset+h.PayloadLength > length {
		return fmt.Errorf("payload runs %d bytes past the asset", h.PayloadOffset+h.PayloadLength-length)
	}
	if err := sc.Format.Check(h); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func pack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	out := fs.String("out", "", "output storage object")
	drumType := fs.Uint("type", 0, "drum type")
	alt := fs.Uint("alt", 0, "alternate sample set 0-3")
	first := fs.Int("first", 1, "sample index of the first file")
	loop := fs.Bool("loop", false, "flag every sample as looping")
	fs.Parse(args)

	if *out == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: pack -out f.bin [-type n] [-alt n] wav...")
	}
	if *first < 0 || *first+fs.NArg() > bank.MaxSamples {
		return fmt.Errorf("%d files from index %d do not fit %d samples", fs.NArg(), *first, bank.MaxSamples)
	}

	format := stream.DefaultConfig().Format
	set := config.SampleSetConfig{
		DrumType: uint8(*drumType),
		Alt:      uint8(*alt),
		File:     filepath.Base(*out),
		Assets:   make([]bank.Asset, *first+fs.NArg()),
	}
	var blob bytes.Buffer
	for i, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h, err := stream.ParseHeader(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := format.Check(h); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		a := bank.Asset{Offset: int64(blob.Len()), Length: int64(len(data))}
		if *loop {
			a.Flags = bank.FlagLoop
		}
		set.Assets[*first+i] = a
		blob.Write(data)
	}
	if err := os.WriteFile(*out, blob.Bytes(), 0644); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}

// demo kits: 12 pitched samples per factory drum type
const demoSamples = 12

func demo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: demo <dir>")
	}
	dir := args[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.StorageDir = "."
	format := stream.DefaultConfig().Format
	presets := bank.DefaultPresets()
	for _, dt := range presets.Types() {
		p, _ := presets.Get(dt)
		set := config.SampleSetConfig{
			DrumType: uint8(dt),
			File:     fmt.Sprintf("%02d-%s.bin", dt, strings.ReplaceAll(strings.ToLower(p.Name), " ", "")),
			Assets:   make([]bank.Asset, demoSamples+1),
		}
		var blob bytes.Buffer
		for i := 1; i <= demoSamples; i++ {
			start := blob.Len()
			pcm := synth(dt, i, format.SampleRate)
			if err := stream.WriteWAV(&blob, format.SampleRate, 16, 1, pcm); err != nil {
				return err
			}
			set.Assets[i] = bank.Asset{Offset: int64(start), Length: int64(blob.Len() - start)}
		}
		if err := os.WriteFile(filepath.Join(dir, set.File), blob.Bytes(), 0644); err != nil {
			return err
		}
		cfg.SampleSets = append(cfg.SampleSets, set)
	}

	path := filepath.Join(dir, "config.json")
	if err := cfg.SaveFile(path); err != nil {
		return err
	}
	fmt.Printf("wrote %d kits, run: drumbank -config %s\n", len(cfg.SampleSets), path)
	return nil
}

// synth renders a short decaying tone, pitched up by index
func synth(dt bank.DrumType, index int, rate uint32) []byte {
	base := 55.0 * float64(1+int(dt))
	freq := base * math.Pow(2, float64(index-1)/12)
	frames := int(rate) / 4
	pcm := make([]byte, 2*frames)
	for n := 0; n < frames; n++ {
		t := float64(n) / float64(rate)
		v := math.Sin(2*math.Pi*freq*t) * math.Exp(-t*12)
		s := int16(v * 0.8 * math.MaxInt16)
		pcm[2*n] = byte(s)
		pcm[2*n+1] = byte(s >> 8)
	}
	return pcm
}

func listPorts() {
	fmt.Println("=== MIDI Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct{ ins, outs []string }
	ch := make(chan result, 1)
	go func() {
		ins, outs := midi.PortNames()
		ch <- result{ins, outs}
	}()

	select {
	case r := <-ch:
		fmt.Println("Inputs:")
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p)
		}
		fmt.Println("Outputs:")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p)
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI driver did not answer.")
	}
}

func play(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: play <port> <channel> <program> note...")
	}
	nums := make([]uint8, len(args)-1)
	for i, a := range args[1:] {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return fmt.Errorf("argument %q: %w", a, err)
		}
		nums[i] = uint8(v)
	}
	channel, program, notes := nums[0], nums[1], nums[2:]
	if channel < 1 || channel > 16 {
		return fmt.Errorf("channel %d out of range 1-16", channel)
	}

	send, name, err := midi.OpenOutput(args[0])
	if err != nil {
		return err
	}
	dt, alt := bank.SplitProgram(program)
	fmt.Printf("Using output: %s (drum type %d alt %d)\n", name, dt, alt)

	if err := midi.SelectBank(send, channel, program); err != nil {
		return err
	}
	for _, n := range notes {
		if err := midi.Hit(send, channel, n, 100); err != nil {
			return err
		}
		time.Sleep(250 * time.Millisecond)
	}
	return nil
}
