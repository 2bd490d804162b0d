// Package stream loads sample payloads from storage into the arena through
// an alternating buffer pair.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"go-drumbank/arena"
	"go-drumbank/bank"
	"go-drumbank/storage"
)

// Config tunes the streamer
type Config struct {
	ChunkSize   int
	HeaderSize  int
	ReadRetries int // extra attempts per read after the first
	Format      Format
	ByteOrder   binary.ByteOrder // order of samples in the arena; assets are little-endian
}

// DefaultConfig returns the device defaults: 48kHz 16-bit, 4KB chunks.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   4096,
		HeaderSize:  512,
		ReadRetries: 2,
		Format:      Format{SampleRate: 48000, BitDepth: 16, MaxChannels: 2},
		ByteOrder:   binary.LittleEndian,
	}
}

// Request asks for one sample of a bank to become resident.
type Request struct {
	ID    uuid.UUID
	Track int
	Bank  *bank.Bank
	Index int
}

// NewRequest creates a request with a fresh correlation id
func NewRequest(track int, b *bank.Bank, index int) Request {
	return Request{ID: uuid.New(), Track: track, Bank: b, Index: index}
}

// Resident is a fully loaded sample ready for playback.
type Resident struct {
	ID        uuid.UUID
	Bank      *bank.Bank
	Index     int
	Voice     bank.VoiceID
	Header    Header
	LoopPoint uint32
	Flags     bank.AssetFlags

	region *arena.Region
}

// Bytes returns the payload in the arena. The slice is only valid until the
// next load, which may move the payload.
func (r *Resident) Bytes() []byte { return r.region.Bytes() }

// View runs fn over the payload while it is pinned in place. Playback reads
// through View so it keeps working while loads compact the arena.
func (r *Resident) View(fn func(p []byte)) { r.region.View(fn) }

// Len returns the payload size
func (r *Resident) Len() int { return r.region.Len() }

// Release frees the payload. The resident must not be played afterwards.
func (r *Resident) Release() { r.region.Release() }

// Stats counts streamer activity
type Stats struct {
	Loads      uint64
	Committed  uint64
	Superseded uint64
	Failed     uint64
	Chunks     uint64
	Retries    uint64
}

// Streamer owns the arena and the buffer pair for the duration of each load.
// Only one load runs at a time; a newer request supersedes the running one
// at its next chunk boundary.
type Streamer struct {
	cfg    Config
	store  storage.Reader
	arena  *arena.Arena
	yield  func()
	width  int
	swap   bool
	header []byte

	opMu sync.Mutex // held for the whole of a load
	pair *bufferPair
	gen  atomic.Uint64

	loads, committed, superseded, failed, chunks, retries atomic.Uint64
}

// Option configures a Streamer
type Option func(*Streamer)

// WithYield installs the hook run at every chunk boundary and between read
// retries. It must not call Load.
func WithYield(fn func()) Option {
	return func(s *Streamer) { s.yield = fn }
}

// New creates a streamer over a store and an arena.
func New(cfg Config, store storage.Reader, a *arena.Arena, opts ...Option) (*Streamer, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.HeaderSize < 44 {
		return nil, fmt.Errorf("header size %d too small for a WAV header", cfg.HeaderSize)
	}
	if cfg.ReadRetries < 0 {
		return nil, fmt.Errorf("read retries must not be negative, got %d", cfg.ReadRetries)
	}
	width := int(cfg.Format.BitDepth / 8)
	if width < 1 || width > 4 || cfg.Format.BitDepth%8 != 0 {
		return nil, fmt.Errorf("unsupported bit depth %d", cfg.Format.BitDepth)
	}
	if cfg.ChunkSize%width != 0 {
		return nil, fmt.Errorf("chunk size %d is not a multiple of the %d-byte sample width", cfg.ChunkSize, width)
	}
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.LittleEndian
	}

	s := &Streamer{
		cfg:    cfg,
		store:  store,
		arena:  a,
		yield:  func() {},
		width:  width,
		swap:   cfg.ByteOrder != binary.LittleEndian,
		header: make([]byte, cfg.HeaderSize),
		pair:   newBufferPair(cfg.ChunkSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Supersede marks any in-flight load as replaced. The load notices at its
// next chunk boundary, releases its reservation and returns ErrSuperseded.
func (s *Streamer) Supersede() {
	s.gen.Add(1)
}

func (s *Streamer) current(gen uint64) bool {
	return s.gen.Load() == gen
}

// Stats returns a snapshot of the counters
func (s *Streamer) Stats() Stats {
	return Stats{
		Loads:      s.loads.Load(),
		Committed:  s.committed.Load(),
		Superseded: s.superseded.Load(),
		Failed:     s.failed.Load(),
		Chunks:     s.chunks.Load(),
		Retries:    s.retries.Load(),
	}
}

// Load validates, budgets and streams one sample into the arena. On any
// error the arena is left as it was before the call.
func (s *Streamer) Load(ctx context.Context, req Request) (*Resident, error) {
	gen := s.gen.Add(1)
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.loads.Add(1)

	res, err := s.load(ctx, req, gen)
	switch {
	case err == nil:
		s.committed.Add(1)
	case errors.Is(err, ErrSuperseded):
		s.superseded.Add(1)
	default:
		s.failed.Add(1)
	}
	return res, err
}

func (s *Streamer) load(ctx context.Context, req Request, gen uint64) (*Resident, error) {
	if !s.current(gen) {
		return nil, ErrSuperseded
	}
	if req.Bank == nil {
		return nil, errors.New("load request without a bank")
	}
	ref := req.Bank.Ref
	asset, ok := req.Bank.Asset(req.Index)
	if !ok {
		return nil, &FormatError{Ref: ref, Index: req.Index, Reason: "no asset at index"}
	}

	hdrLen := int64(len(s.header))
	if asset.Length < hdrLen {
		hdrLen = asset.Length
	}
	hdrBuf := s.header[:hdrLen]
	if err := s.read(ctx, ref, asset.Offset, hdrBuf, -1); err != nil {
		return nil, err
	}
	h, err := ParseHeader(hdrBuf)
	if err != nil {
		return nil, &FormatError{Ref: ref, Index: req.Index, Reason: "bad header", Err: err}
	}
	if err := s.cfg.Format.Check(h); err != nil {
		return nil, &FormatError{Ref: ref, Index: req.Index, Reason: h.String(), Err: err}
	}
	if h.PayloadOffset+h.PayloadLength > asset.Length {
		return nil, &FormatError{Ref: ref, Index: req.Index,
			Reason: fmt.Sprintf("payload ends at %d, asset is %d bytes", h.PayloadOffset+h.PayloadLength, asset.Length)}
	}

	size := int(h.PayloadLength)
	if err := s.arena.Check(size); err != nil {
		return nil, &CapacityError{Ref: ref, Index: req.Index, Size: h.PayloadLength, Err: err}
	}
	if !s.current(gen) {
		return nil, ErrSuperseded
	}

	rsv, err := s.arena.Reserve(size)
	if err != nil {
		return nil, &CapacityError{Ref: ref, Index: req.Index, Size: h.PayloadLength, Err: err}
	}
	done := false
	defer func() {
		if !done {
			s.pair.discard()
			rsv.Release()
		}
	}()

	dst := rsv.Bytes()
	written := 0
	base := asset.Offset + h.PayloadOffset
	var held *chunkBuf // chunk handed to the consumer, not yet drained

	for chunk, pos := 0, 0; pos < size; chunk++ {
		if chunk > 0 {
			s.yield()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.current(gen) {
			return nil, ErrSuperseded
		}

		n := s.cfg.ChunkSize
		if size-pos < n {
			n = size - pos
		}
		buf := s.pair.fill(n)
		if err := s.read(ctx, ref, base+int64(pos), buf, chunk); err != nil {
			return nil, err
		}
		if s.swap {
			normalize(buf, s.width)
		}
		s.chunks.Add(1)
		pos += n

		if held != nil {
			written += copy(dst[written:], held.bytes())
			held.drained()
		}
		if held, err = s.pair.swap(); err != nil {
			return nil, err
		}
	}
	if held != nil {
		written += copy(dst[written:], held.bytes())
		held.drained()
	}

	if !s.current(gen) {
		return nil, ErrSuperseded
	}
	if written != size {
		return nil, fmt.Errorf("streamed %d of %d payload bytes", written, size)
	}

	region, err := rsv.Commit()
	if err != nil {
		return nil, err
	}
	done = true
	return &Resident{
		ID:        req.ID,
		Bank:      req.Bank,
		Index:     req.Index,
		Voice:     req.Bank.VoiceOf(req.Index),
		Header:    h,
		LoopPoint: asset.LoopPoint,
		Flags:     asset.Flags,
		region:    region,
	}, nil
}

// read fills p with bounded retries. chunk is -1 for the header.
func (s *Streamer) read(ctx context.Context, ref string, off int64, p []byte, chunk int) error {
	var err error
	attempts := 0
	for attempts <= s.cfg.ReadRetries {
		if attempts > 0 {
			s.retries.Add(1)
			s.yield()
		}
		attempts++
		if err = s.store.Read(ctx, ref, off, p); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &StorageError{Ref: ref, Offset: off, Chunk: chunk, Attempts: attempts, Err: err}
}
