package capture

import (
	"time"

	"github.com/MrWong99/sereno/pkg/audio"
)

// Framer regroups an arbitrary sequence of sample blocks into fixed-length
// frames. Device callbacks rarely deliver exactly the frame size, so the
// Framer carries the remainder of each block over to the next call.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	size int
	rate int
	buf  []float32
	seq  uint64
}

// NewFramer returns a Framer emitting frames of size samples at rate Hz.
func NewFramer(size, rate int) *Framer {
	return &Framer{
		size: size,
		rate: rate,
		buf:  make([]float32, 0, size),
	}
}

// Write appends samples and calls emit once for every completed frame, in
// capture order. Each emitted frame owns its sample slice.
func (f *Framer) Write(samples []float32, emit func(audio.AudioFrame)) {
	for len(samples) > 0 {
		n := min(f.size-len(f.buf), len(samples))
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) < f.size {
			return
		}

		frame := audio.AudioFrame{
			Samples:    f.buf,
			SampleRate: f.rate,
			Seq:        f.seq,
			Timestamp:  time.Duration(f.seq) * time.Duration(f.size) * time.Second / time.Duration(f.rate),
		}
		f.seq++
		f.buf = make([]float32, 0, f.size)
		emit(frame)
	}
}

// Buffered returns the number of samples waiting for the next frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Reset discards buffered samples and restarts the sequence at zero.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.seq = 0
}
