package voice

import (
	"io"
	"sync"
)

// payload is resident sample memory. View holds it in place while fn runs;
// the arena may move it between calls.
type payload interface {
	Len() int
	View(fn func(p []byte))
}

// sampleReader renders a resident payload as interleaved 16-bit
// little-endian frames at the output's channel count. Looping samples repeat
// from the loop point until stopLoop.
type sampleReader struct {
	mu      sync.Mutex
	src     payload
	end     int // payload bytes, whole frames only
	srcCh   int
	dstCh   int
	pos     int // byte offset into the payload
	loopAt  int // byte offset, -1 when not looping
	swap    bool
	stopped bool
}

const sampleBytes = 2

func newSampleReader(src payload, srcCh, dstCh int, loopFrame uint32, loop, swap bool) *sampleReader {
	frame := srcCh * sampleBytes
	r := &sampleReader{
		src:    src,
		end:    src.Len() / frame * frame, // drop a trailing partial frame
		srcCh:  srcCh,
		dstCh:  dstCh,
		loopAt: -1,
		swap:   swap,
	}
	if loop {
		if at := int(loopFrame) * frame; at < r.end {
			r.loopAt = at
		}
	}
	return r
}

func (r *sampleReader) sample(b []byte) int {
	if r.swap {
		return int(int16(uint16(b[0])<<8 | uint16(b[1])))
	}
	return int(int16(uint16(b[1])<<8 | uint16(b[0])))
}

func (r *sampleReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	if !r.stopped {
		r.src.View(func(data []byte) {
			n = r.render(p, data)
		})
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *sampleReader) render(p, data []byte) int {
	if len(data) < r.end {
		// released underneath us
		return 0
	}
	srcFrame := r.srcCh * sampleBytes
	dstFrame := r.dstCh * sampleBytes
	n := 0
	for len(p)-n >= dstFrame {
		if r.pos >= r.end {
			if r.loopAt < 0 {
				break
			}
			r.pos = r.loopAt
		}
		frame := data[r.pos : r.pos+srcFrame]
		for c := 0; c < r.dstCh; c++ {
			var v int
			if r.dstCh == 1 && r.srcCh > 1 {
				// mono output gets the mean of every source channel
				for sc := 0; sc < r.srcCh; sc++ {
					v += r.sample(frame[sc*sampleBytes:])
				}
				v /= r.srcCh
			} else {
				sc := c
				if sc >= r.srcCh {
					sc = r.srcCh - 1
				}
				v = r.sample(frame[sc*sampleBytes:])
			}
			p[n] = byte(v)
			p[n+1] = byte(v >> 8)
			n += sampleBytes
		}
		r.pos += srcFrame
	}
	return n
}

// stopLoop lets a looping sample play out to its end
func (r *sampleReader) stopLoop() {
	r.mu.Lock()
	r.loopAt = -1
	r.mu.Unlock()
}

// stop ends playback at the next Read
func (r *sampleReader) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}
