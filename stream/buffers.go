package stream

import "errors"

// chunkBuf is one slot of the alternating pair. n > 0 means it holds a chunk
// the consumer has not drained yet.
type chunkBuf struct {
	data []byte
	n    int
}

func (b *chunkBuf) bytes() []byte { return b.data[:b.n] }

// bufferPair is a two-slot ring between storage reads and the arena. The
// producer only touches the filling slot and the consumer only the other
// one; swap moves both handles at once.
type bufferPair struct {
	slots   [2]chunkBuf
	filling int
}

func newBufferPair(size int) *bufferPair {
	p := &bufferPair{}
	for i := range p.slots {
		p.slots[i].data = make([]byte, size)
	}
	return p
}

// fill returns the producer's slot sized for n bytes.
func (p *bufferPair) fill(n int) []byte {
	b := &p.slots[p.filling]
	b.n = n
	return b.data[:n]
}

// swap hands the filled slot to the consumer. It refuses while the consumer
// still holds an undrained chunk or the producer has nothing to hand over.
func (p *bufferPair) swap() (*chunkBuf, error) {
	full := &p.slots[p.filling]
	other := &p.slots[1-p.filling]
	if other.n != 0 {
		return nil, errors.New("stream buffer swap before consumer drained")
	}
	if full.n == 0 {
		return nil, errors.New("stream buffer swap with empty chunk")
	}
	p.filling = 1 - p.filling
	return full, nil
}

// drained marks the consumer's slot as free again.
func (b *chunkBuf) drained() { b.n = 0 }

// discard drops whatever both slots hold.
func (p *bufferPair) discard() {
	p.slots[0].n = 0
	p.slots[1].n = 0
}

// normalize reorders each width-byte sample in place.
func normalize(p []byte, width int) {
	switch width {
	case 2:
		for i := 0; i+1 < len(p); i += 2 {
			p[i], p[i+1] = p[i+1], p[i]
		}
	case 3:
		for i := 0; i+2 < len(p); i += 3 {
			p[i], p[i+2] = p[i+2], p[i]
		}
	case 4:
		for i := 0; i+3 < len(p); i += 4 {
			p[i], p[i+1], p[i+2], p[i+3] = p[i+3], p[i+2], p[i+1], p[i]
		}
	}
}
