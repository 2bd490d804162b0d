package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"go-drumbank/arena"
	"go-drumbank/bank"
	"go-drumbank/storage"
)

var errDevice = errors.New("sector read fault")

// makeWAV builds a RIFF/WAVE asset. Extra chunks go between fmt and data.
func makeWAV(rate uint32, bits, channels uint16, payload []byte, extra ...[]byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(0))
	b.WriteString("WAVE")

	align := channels * bits / 8
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&b, binary.LittleEndian, channels)
	binary.Write(&b, binary.LittleEndian, rate)
	binary.Write(&b, binary.LittleEndian, rate*uint32(align))
	binary.Write(&b, binary.LittleEndian, align)
	binary.Write(&b, binary.LittleEndian, bits)

	for _, x := range extra {
		b.Write(x)
	}

	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(payload)))
	b.Write(payload)

	out := b.Bytes()
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

func listChunk(body string) []byte {
	var b bytes.Buffer
	b.WriteString("LIST")
	binary.Write(&b, binary.LittleEndian, uint32(len(body)))
	b.WriteString(body)
	if len(body)%2 == 1 {
		b.WriteByte(0)
	}
	return b.Bytes()
}

func payload(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i*7)
	}
	return p
}

// newTestBank stores the given assets back to back in one object and
// returns a bank whose manifest points at them.
func newTestBank(t *testing.T, store *storage.Mem, assets map[int][]byte) *bank.Bank {
	t.Helper()
	set := bank.SampleSet{Ref: "kit.bin", Assets: make([]bank.Asset, bank.MaxSamples)}
	var blob []byte
	for idx := 0; idx < bank.MaxSamples; idx++ {
		a, ok := assets[idx]
		if !ok {
			continue
		}
		set.Assets[idx] = bank.Asset{Offset: int64(len(blob)), Length: int64(len(a)), LoopPoint: uint32(idx)}
		blob = append(blob, a...)
	}
	store.Put(set.Ref, blob)
	b, err := bank.New(bank.DrumKick, 0, bank.Preset{Name: "Kick", Table: 0}, set)
	if err != nil {
		t.Fatalf("bank.New: %v", err)
	}
	return b
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = 64
	cfg.HeaderSize = 128
	return cfg
}

func newTestStreamer(t *testing.T, cfg Config, store storage.Reader, capacity, ceiling int, opts ...Option) (*Streamer, *arena.Arena) {
	t.Helper()
	a, err := arena.New(capacity, ceiling)
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	s, err := New(cfg, store, a, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, a
}

type flakyStore struct {
	storage.Reader
	mu       sync.Mutex
	failures map[int64]int // remaining failures per offset, -1 fails forever
	reads    int
}

func (f *flakyStore) Read(ctx context.Context, ref string, off int64, p []byte) error {
	f.mu.Lock()
	f.reads++
	n, ok := f.failures[off]
	if ok && n != 0 {
		if n > 0 {
			f.failures[off] = n - 1
		}
		f.mu.Unlock()
		return errDevice
	}
	f.mu.Unlock()
	return f.Reader.Read(ctx, ref, off, p)
}

func TestLoad_Success(t *testing.T) {
	store := storage.NewMem()
	want := payload(640, 3)
	b := newTestBank(t, store, map[int][]byte{
		1: makeWAV(48000, 16, 1, payload(100, 9)),
		2: makeWAV(48000, 16, 2, want, listChunk("INFOabc")),
	})
	s, a := newTestStreamer(t, testConfig(), store, 4096, 2048)

	before := a.Used()
	r, err := s.Load(context.Background(), NewRequest(0, b, 2))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := a.Used() - before; got != len(want) {
		t.Fatalf("occupancy grew by %d, want %d", got, len(want))
	}
	if !bytes.Equal(r.Bytes(), want) {
		t.Fatal("resident payload differs from asset payload")
	}
	if r.Index != 2 || r.Voice != 2 || r.LoopPoint != 2 || r.Header.Channels != 2 {
		t.Fatalf("resident = %+v", r)
	}
	if st := s.Stats(); st.Committed != 1 || st.Chunks != 10 {
		t.Fatalf("stats = %+v", st)
	}

	r.Release()
	if a.Used() != before {
		t.Fatalf("Used after release = %d", a.Used())
	}
}

func TestLoad_ByteOrderNormalization(t *testing.T) {
	store := storage.NewMem()
	src := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	b := newTestBank(t, store, map[int][]byte{1: makeWAV(48000, 16, 1, src)})

	cfg := testConfig()
	cfg.ChunkSize = 4
	cfg.ByteOrder = binary.BigEndian
	s, _ := newTestStreamer(t, cfg, store, 1024, 512)

	r, err := s.Load(context.Background(), NewRequest(0, b, 1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05}
	if !bytes.Equal(r.Bytes(), want) {
		t.Fatalf("payload = % x, want % x", r.Bytes(), want)
	}
}

func TestLoad_FormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		asset []byte
	}{
		{"sample rate", makeWAV(44100, 16, 1, payload(64, 1))},
		{"bit depth", makeWAV(48000, 24, 1, payload(66, 1))},
		{"channels", makeWAV(48000, 16, 6, payload(120, 1))},
		{"odd payload", makeWAV(48000, 16, 1, payload(63, 1))},
		{"tag", append([]byte("RIFX"), makeWAV(48000, 16, 1, payload(64, 1))[4:]...)},
		{"truncated", makeWAV(48000, 16, 1, payload(64, 1))[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMem()
			b := newTestBank(t, store, map[int][]byte{1: tt.asset})
			s, a := newTestStreamer(t, testConfig(), store, 4096, 2048)

			_, err := s.Load(context.Background(), NewRequest(0, b, 1))
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want FormatError", err)
			}
			if a.Used() != 0 || a.Pending() || a.Free() != a.Capacity() {
				t.Fatalf("arena mutated: %s", a.Stats())
			}
		})
	}
}

func TestLoad_NoAsset(t *testing.T) {
	store := storage.NewMem()
	b := newTestBank(t, store, map[int][]byte{1: makeWAV(48000, 16, 1, payload(64, 1))})
	s, _ := newTestStreamer(t, testConfig(), store, 4096, 2048)

	var fe *FormatError
	if _, err := s.Load(context.Background(), NewRequest(0, b, 50)); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func TestLoad_ExactCapacity(t *testing.T) {
	store := storage.NewMem()
	b := newTestBank(t, store, map[int][]byte{
		1: makeWAV(48000, 16, 1, payload(400, 1)),
		2: makeWAV(48000, 16, 1, payload(600, 2)),
	})

	t.Run("at remaining", func(t *testing.T) {
		s, a := newTestStreamer(t, testConfig(), store, 1000, 900)
		if _, err := s.Load(context.Background(), NewRequest(0, b, 1)); err != nil {
			t.Fatalf("Load 1: %v", err)
		}
		if _, err := s.Load(context.Background(), NewRequest(1, b, 2)); err != nil {
			t.Fatalf("Load at exact remaining capacity: %v", err)
		}
		if a.Used() != 1000 || a.Free() != 0 {
			t.Fatalf("arena = %s, want full", a.Stats())
		}
	})

	t.Run("one over", func(t *testing.T) {
		// one byte less capacity leaves 599 free for the 600 byte payload
		s, a := newTestStreamer(t, testConfig(), store, 999, 900)
		if _, err := s.Load(context.Background(), NewRequest(0, b, 1)); err != nil {
			t.Fatalf("Load 1: %v", err)
		}
		_, err := s.Load(context.Background(), NewRequest(1, b, 2))
		var ce *CapacityError
		if !errors.As(err, &ce) {
			t.Fatalf("err = %v, want CapacityError", err)
		}
		var ae *arena.CapacityError
		if !errors.As(err, &ae) || ae.Limit != "free capacity" || ae.Available != 599 {
			t.Fatalf("arena cause = %v", err)
		}
		if a.Used() != 400 || a.Pending() {
			t.Fatalf("arena mutated: %s", a.Stats())
		}
	})
}

func TestLoad_FragmentedArenaCompacts(t *testing.T) {
	store := storage.NewMem()
	big := payload(600, 4)
	b := newTestBank(t, store, map[int][]byte{
		1: makeWAV(48000, 16, 1, payload(200, 1)),
		2: makeWAV(48000, 16, 1, payload(200, 2)),
		3: makeWAV(48000, 16, 1, payload(200, 3)),
		4: makeWAV(48000, 16, 1, big),
	})
	s, a := newTestStreamer(t, testConfig(), store, 1000, 600)
	ctx := context.Background()

	var held []*Resident
	for idx := 1; idx <= 3; idx++ {
		r, err := s.Load(ctx, NewRequest(idx, b, idx))
		if err != nil {
			t.Fatalf("Load %d: %v", idx, err)
		}
		held = append(held, r)
	}
	held[0].Release()

	// 600 free, split into a 200 byte gap and 400 at the end
	r, err := s.Load(ctx, NewRequest(0, b, 4))
	if err != nil {
		t.Fatalf("Load with exactly the free capacity: %v", err)
	}
	if !bytes.Equal(r.Bytes(), big) {
		t.Fatal("payload corrupted")
	}
	if !bytes.Equal(held[1].Bytes(), payload(200, 2)) || !bytes.Equal(held[2].Bytes(), payload(200, 3)) {
		t.Fatal("moved residents lost their payload")
	}
	if a.Used() != 1000 || a.Compactions() != 1 {
		t.Fatalf("arena = %s", a.Stats())
	}
}

func TestLoad_PerSampleCeiling(t *testing.T) {
	store := storage.NewMem()
	b := newTestBank(t, store, map[int][]byte{1: makeWAV(48000, 16, 1, payload(1026, 1))})
	s, a := newTestStreamer(t, testConfig(), store, 4096, 1024)

	_, err := s.Load(context.Background(), NewRequest(0, b, 1))
	var ae *arena.CapacityError
	if !errors.As(err, &ae) || ae.Limit != "per-sample ceiling" {
		t.Fatalf("err = %v, want per-sample ceiling", err)
	}
	if a.Used() != 0 {
		t.Fatalf("Used = %d", a.Used())
	}
}

func TestLoad_StorageFailureMidStream(t *testing.T) {
	mem := storage.NewMem()
	b := newTestBank(t, mem, map[int][]byte{
		1: makeWAV(48000, 16, 1, payload(128, 1)),
		2: makeWAV(48000, 16, 1, payload(640, 2)),
	})
	asset, _ := b.Asset(2)
	chunk3 := asset.Offset + 44 + 3*64

	store := &flakyStore{Reader: mem, failures: map[int64]int{chunk3: -1}}
	s, a := newTestStreamer(t, testConfig(), store, 4096, 2048)

	if _, err := s.Load(context.Background(), NewRequest(0, b, 1)); err != nil {
		t.Fatalf("Load 1: %v", err)
	}
	used := a.Used()

	_, err := s.Load(context.Background(), NewRequest(0, b, 2))
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if se.Chunk != 3 || se.Attempts != 3 || !errors.Is(err, errDevice) {
		t.Fatalf("StorageError = %+v", se)
	}
	if a.Used() != used || a.Pending() || a.Free() != a.Capacity()-used {
		t.Fatalf("arena not rolled back: %s", a.Stats())
	}
	if s.pair.slots[0].n != 0 || s.pair.slots[1].n != 0 {
		t.Fatal("buffer pair still holds chunks")
	}
}

func TestLoad_TransientFailureRetried(t *testing.T) {
	mem := storage.NewMem()
	b := newTestBank(t, mem, map[int][]byte{1: makeWAV(48000, 16, 1, payload(256, 1))})
	asset, _ := b.Asset(1)

	store := &flakyStore{Reader: mem, failures: map[int64]int{asset.Offset + 44 + 64: 2}}
	s, _ := newTestStreamer(t, testConfig(), store, 4096, 2048)

	if _, err := s.Load(context.Background(), NewRequest(0, b, 1)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st := s.Stats(); st.Retries != 2 {
		t.Fatalf("retries = %d, want 2", st.Retries)
	}
}

func TestLoad_HeaderReadFailure(t *testing.T) {
	mem := storage.NewMem()
	b := newTestBank(t, mem, map[int][]byte{1: makeWAV(48000, 16, 1, payload(64, 1))})
	asset, _ := b.Asset(1)
	store := &flakyStore{Reader: mem, failures: map[int64]int{asset.Offset: -1}}

	cfg := testConfig()
	cfg.ReadRetries = 0
	s, _ := newTestStreamer(t, cfg, store, 4096, 2048)

	_, err := s.Load(context.Background(), NewRequest(0, b, 1))
	var se *StorageError
	if !errors.As(err, &se) || se.Chunk != -1 || se.Attempts != 1 {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_SupersededAtChunkBoundary(t *testing.T) {
	store := storage.NewMem()
	b := newTestBank(t, store, map[int][]byte{
		1: makeWAV(48000, 16, 1, payload(640, 1)),
		2: makeWAV(48000, 16, 1, payload(128, 2)),
	})

	var s *Streamer
	boundaries := 0
	s, a := newTestStreamer(t, testConfig(), store, 4096, 2048, WithYield(func() {
		boundaries++
		if boundaries == 2 {
			s.Supersede()
		}
	}))

	_, err := s.Load(context.Background(), NewRequest(0, b, 1))
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("err = %v, want ErrSuperseded", err)
	}
	if a.Used() != 0 || a.Pending() {
		t.Fatalf("superseded load left arena state: %s", a.Stats())
	}

	r, err := s.Load(context.Background(), NewRequest(0, b, 2))
	if err != nil {
		t.Fatalf("next Load: %v", err)
	}
	if a.Used() != r.Len() || r.Index != 2 {
		t.Fatalf("Used = %d, resident %d", a.Used(), r.Index)
	}
	if st := s.Stats(); st.Superseded != 1 || st.Committed != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestLoad_NewerRequestWins(t *testing.T) {
	store := storage.NewMem()
	first := payload(640, 1)
	second := payload(128, 2)
	b := newTestBank(t, store, map[int][]byte{
		1: makeWAV(48000, 16, 1, first),
		2: makeWAV(48000, 16, 1, second),
	})

	var s *Streamer
	var once sync.Once
	type result struct {
		r   *Resident
		err error
	}
	secondDone := make(chan result, 1)

	s, a := newTestStreamer(t, testConfig(), store, 4096, 2048, WithYield(func() {
		once.Do(func() {
			before := s.gen.Load()
			go func() {
				r, err := s.Load(context.Background(), NewRequest(0, b, 2))
				secondDone <- result{r, err}
			}()
			// wait until the second request has announced itself
			deadline := time.Now().Add(2 * time.Second)
			for s.gen.Load() == before && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
		})
	}))

	if _, err := s.Load(context.Background(), NewRequest(0, b, 1)); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first Load err = %v, want ErrSuperseded", err)
	}

	res := <-secondDone
	if res.err != nil {
		t.Fatalf("second Load: %v", res.err)
	}
	if !bytes.Equal(res.r.Bytes(), second) {
		t.Fatal("second resident payload mismatch")
	}
	if a.Used() != len(second) {
		t.Fatalf("Used = %d, want %d", a.Used(), len(second))
	}
}

func TestLoad_ContextCancelled(t *testing.T) {
	store := storage.NewMem()
	b := newTestBank(t, store, map[int][]byte{1: makeWAV(48000, 16, 1, payload(640, 1))})

	ctx, cancel := context.WithCancel(context.Background())
	s, a := newTestStreamer(t, testConfig(), store, 4096, 2048, WithYield(cancel))

	if _, err := s.Load(ctx, NewRequest(0, b, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if a.Used() != 0 || a.Pending() {
		t.Fatalf("arena state: %s", a.Stats())
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	a, _ := arena.New(100, 50)
	bad := []func(*Config){
		func(c *Config) { c.ChunkSize = 0 },
		func(c *Config) { c.HeaderSize = 10 },
		func(c *Config) { c.ReadRetries = -1 },
		func(c *Config) { c.Format.BitDepth = 12 },
		func(c *Config) { c.Format.BitDepth = 24; c.ChunkSize = 64 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := New(cfg, storage.NewMem(), a); err == nil {
			t.Errorf("case %d: config accepted", i)
		}
	}
}
