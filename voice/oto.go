package voice

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

type otoBackend struct {
	ctx *oto.Context
}

func (b otoBackend) NewPlayer(r io.Reader) Player {
	return b.ctx.NewPlayer(r)
}

// NewOto opens the system audio device and returns an output on it.
// Only one oto context may exist per process.
func NewOto(sampleRate, channels int, buffer time.Duration, bigEndian bool) (*Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	return New(otoBackend{ctx: ctx}, channels, bigEndian), nil
}
