package playback

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/sereno/pkg/audio"
)

// ErrClosed is returned when scheduling on a closed [Context].
var ErrClosed = errors.New("playback: context closed")

// ErrFormatMismatch is returned when a buffer's format differs from the
// context's.
var ErrFormatMismatch = errors.New("playback: buffer format does not match output")

// Tap observes every rendered block after mixing. Taps must not retain or
// modify block and must not block.
type Tap interface {
	Process(block []float32, channels int)
}

// Context is an output audio context: a sample clock driven by the output
// device, plus the set of buffers scheduled against that clock.
//
// The clock only advances when [Context.Render] is called, which the output
// device does from its own thread at the hardware rate. Buffers enqueued at a
// time that has already been rendered begin at the first unrendered frame.
//
// All methods are safe for concurrent use.
type Context struct {
	format audio.Format

	mu       sync.Mutex
	rendered int64 // frames rendered since creation
	pending  sourceHeap
	active   []*source
	seq      uint64
	taps     []Tap
	stream   audio.Stream
	closed   bool
}

// NewContext creates a Context that renders in format. The context is not
// attached to a device; call [Context.Attach] or drive [Context.Render]
// directly.
func NewContext(format audio.Format) *Context {
	return &Context{format: format}
}

// Open creates a Context and starts dev pulling audio from it.
func Open(ctx context.Context, dev audio.OutputDevice, format audio.Format) (*Context, error) {
	c := NewContext(format)
	if err := c.Attach(ctx, dev); err != nil {
		return nil, err
	}
	return c, nil
}

// Attach opens dev in the context's format and starts it with Render as the
// device callback. The stream is closed by [Context.Close].
func (c *Context) Attach(ctx context.Context, dev audio.OutputDevice) error {
	stream, err := dev.Open(ctx, c.format, c.Render)
	if err != nil {
		return fmt.Errorf("playback: open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("playback: start output: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = stream.Close()
		return ErrClosed
	}
	c.stream = stream
	return nil
}

// Format returns the render format.
func (c *Context) Format() audio.Format { return c.format }

// CurrentTime returns the context clock in seconds: the number of frames
// rendered so far divided by the sample rate.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.rendered) / float64(c.format.SampleRate)
}

// AddTap registers t to observe every rendered block.
func (c *Context) AddTap(t Tap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taps = append(c.taps, t)
}

// Start schedules buf to begin playing at time at (seconds on the context
// clock). The buffer must already be in the context's format.
func (c *Context) Start(buf *audio.Buffer, at float64) error {
	_, err := c.Enqueue(buf, at)
	return err
}

// Enqueue schedules buf to begin at notBefore, or at the first frame not yet
// rendered if notBefore lies in the past, and returns the start time it
// chose. Choosing the start and queueing the buffer happen under one lock, so
// a render between the two cannot move the buffer behind the caller's back.
func (c *Context) Enqueue(buf *audio.Buffer, notBefore float64) (float64, error) {
	if buf.SampleRate != c.format.SampleRate || buf.NumChannels() != c.format.Channels {
		return 0, fmt.Errorf("%w: buffer %s, output %s", ErrFormatMismatch, buf.Format(), c.format)
	}

	frames := buf.Frames()
	ch := c.format.Channels
	samples := make([]float32, frames*ch)
	for i := range frames {
		for k := range ch {
			samples[i*ch+k] = buf.Channels[k][i]
		}
	}
	rate := float64(c.format.SampleRate)
	want := int64(math.Round(notBefore * rate))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	start := max(want, c.rendered)
	if frames == 0 {
		return float64(start) / rate, nil
	}
	c.seq++
	heap.Push(&c.pending, &source{
		samples: samples,
		start:   start,
		end:     start + int64(frames),
		seq:     c.seq,
	})
	return float64(start) / rate, nil
}

// Pending returns the number of buffers that have not finished playing.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) + len(c.active)
}

// Render fills out with the next block of interleaved samples and advances
// the clock by len(out)/channels frames. A closed context renders silence and
// does not advance.
func (c *Context) Render(out []float32) {
	clear(out)
	ch := c.format.Channels

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	n := int64(len(out) / ch)
	from := c.rendered
	to := from + n

	// Enqueue never starts a source before c.rendered, so every source
	// popped here begins inside this block.
	for len(c.pending) > 0 && c.pending[0].start < to {
		c.active = append(c.active, heap.Pop(&c.pending).(*source))
	}

	kept := c.active[:0]
	for _, s := range c.active {
		lo := max(from, s.start)
		hi := min(to, s.end)
		for f := lo; f < hi; f++ {
			src := (f - s.start) * int64(ch)
			dst := (f - from) * int64(ch)
			for k := range int64(ch) {
				out[dst+k] += s.samples[src+k]
			}
		}
		if s.end > to {
			kept = append(kept, s)
		}
	}
	clear(c.active[len(kept):])
	c.active = kept
	c.rendered = to
	taps := c.taps
	c.mu.Unlock()

	for _, t := range taps {
		t.Process(out, ch)
	}
}

// Close stops the output device, silences all scheduled buffers and rejects
// further scheduling. Idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pending = nil
	c.active = nil
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			return fmt.Errorf("playback: close output: %w", err)
		}
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
