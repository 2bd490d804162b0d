package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/riff"
)

var (
	riffTag = [4]byte{'R', 'I', 'F', 'F'}
	waveTag = [4]byte{'W', 'A', 'V', 'E'}
	fmtTag  = [4]byte{'f', 'm', 't', ' '}
	dataTag = [4]byte{'d', 'a', 't', 'a'}
)

// WAV format codes accepted for integer PCM
const (
	wavFormatPCM        = 0x0001
	wavFormatExtensible = 0xFFFE
)

// Header is the container metadata in front of a sample payload.
type Header struct {
	Tag           string
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitDepth      uint16
	BlockAlign    uint16
	SubFormat     uint16 // format code from the extensible GUID, 0 otherwise
	PayloadOffset int64  // relative to the asset start
	PayloadLength int64
}

// String implements fmt.Stringer
func (h Header) String() string {
	return fmt.Sprintf("%s fmt=%#04x %dch %dHz %dbit payload=%d@%d",
		h.Tag, h.AudioFormat, h.Channels, h.SampleRate, h.BitDepth, h.PayloadLength, h.PayloadOffset)
}

// ParseHeader reads a RIFF/WAVE header from the leading bytes of an asset.
// The data chunk must start inside p.
func ParseHeader(p []byte) (Header, error) {
	r := bytes.NewReader(p)
	parser := riff.New(r)
	if err := parser.ParseHeaders(); err != nil {
		return Header{}, fmt.Errorf("container header: %w", err)
	}

	h := Header{Tag: string(parser.ID[:]) + "/" + string(parser.Format[:])}
	if parser.ID != riffTag || parser.Format != waveTag {
		return h, fmt.Errorf("container tag %q not recognized", h.Tag)
	}

	off := int64(12)
	haveFmt := false
	for {
		ch, err := parser.NextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return h, fmt.Errorf("no data chunk within the first %d bytes", len(p))
			}
			return h, fmt.Errorf("chunk at %d: %w", off, err)
		}

		switch ch.ID {
		case fmtTag:
			if err := ch.DecodeWavHeader(parser); err != nil {
				return h, fmt.Errorf("fmt chunk: %w", err)
			}
			if parser.WavAudioFormat == wavFormatExtensible {
				// the GUID's first two bytes carry the real format code
				at := off + 8 + 24
				if ch.Size < 40 || at+2 > int64(len(p)) {
					return h, fmt.Errorf("extensible fmt chunk of %d bytes has no subformat", ch.Size)
				}
				h.SubFormat = uint16(p[at]) | uint16(p[at+1])<<8
			}
			haveFmt = true
		case dataTag:
			if !haveFmt {
				return h, errors.New("data chunk before fmt chunk")
			}
			h.AudioFormat = parser.WavAudioFormat
			h.Channels = parser.NumChannels
			h.SampleRate = parser.SampleRate
			h.BitDepth = parser.BitsPerSample
			h.BlockAlign = parser.BlockAlign
			h.PayloadOffset = off + 8
			h.PayloadLength = int64(ch.Size)
			return h, nil
		}

		off += 8 + int64(ch.Size)
		if ch.Size%2 == 1 {
			off++
		}
		if _, err := r.Seek(off, io.SeekStart); err != nil {
			return h, fmt.Errorf("chunk at %d: %w", off, err)
		}
	}
}

// Format is the asset format the device plays.
type Format struct {
	SampleRate  uint32
	BitDepth    uint16
	MaxChannels uint16
}

// Check validates a parsed header against the required format.
func (f Format) Check(h Header) error {
	switch {
	case h.AudioFormat == wavFormatExtensible:
		if h.SubFormat != wavFormatPCM {
			return fmt.Errorf("extensible subformat %#04x is not integer PCM", h.SubFormat)
		}
	case h.AudioFormat != wavFormatPCM:
		return fmt.Errorf("audio format %#04x is not integer PCM", h.AudioFormat)
	}
	if h.SampleRate != f.SampleRate {
		return fmt.Errorf("sample rate %d, need %d", h.SampleRate, f.SampleRate)
	}
	if h.BitDepth != f.BitDepth {
		return fmt.Errorf("bit depth %d, need %d", h.BitDepth, f.BitDepth)
	}
	if h.Channels == 0 || h.Channels > f.MaxChannels {
		return fmt.Errorf("%d channels, need 1..%d", h.Channels, f.MaxChannels)
	}
	frame := int64(h.Channels) * int64(h.BitDepth/8)
	if h.BlockAlign != 0 && int64(h.BlockAlign) != frame {
		return fmt.Errorf("block align %d, expected %d", h.BlockAlign, frame)
	}
	if h.PayloadLength <= 0 {
		return errors.New("empty payload")
	}
	if h.PayloadLength%frame != 0 {
		return fmt.Errorf("payload of %d bytes is not a whole number of %d-byte frames", h.PayloadLength, frame)
	}
	return nil
}
