// Package capture turns a live microphone stream into encoded frames for the
// remote session.
//
// A [Pipeline] acquires the microphone at 16 kHz mono, regroups the device
// callbacks into fixed 4096-sample [audio.AudioFrame] values, encodes each
// frame with [audio.EncodeFrame] and hands it to a [Sink]. Delivery is
// fire-and-forget: the device thread never waits for the network. A single
// sender goroutine drains a bounded queue so frames reach the sink in capture
// order; when the queue is full the newest frame is dropped and counted.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/sereno/pkg/audio"
)

// ErrPermissionDenied is returned when microphone access is refused.
var ErrPermissionDenied = audio.ErrPermissionDenied

// ErrNotAcquired is returned by [Pipeline.Start] when the microphone could
// not be acquired.
var ErrNotAcquired = errors.New("capture: microphone not acquired")

const defaultQueueSize = 32

// Sink receives encoded frames in capture order. Errors are logged by the
// pipeline and otherwise ignored.
type Sink func(ctx context.Context, p audio.EncodedPayload) error

// Stats is a snapshot of pipeline counters.
type Stats struct {
	// Captured is the number of complete frames produced by the framer.
	Captured uint64
	// Sent is the number of frames the sink accepted without error.
	Sent uint64
	// Dropped is the number of frames discarded because the queue was full.
	Dropped uint64
	// Failed is the number of frames the sink returned an error for.
	Failed uint64
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithFrameSize overrides the frame length in samples.
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// WithSampleRate overrides the capture sample rate.
func WithSampleRate(hz int) Option {
	return func(p *Pipeline) {
		if hz > 0 {
			p.sampleRate = hz
		}
	}
}

// WithQueueSize sets how many encoded frames may wait for the sink before new
// frames are dropped.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithFrameHook registers fn to be called on the sender goroutine for every
// frame after the sink returned. err is the sink's result.
func WithFrameHook(fn func(frame audio.AudioFrame, err error)) Option {
	return func(p *Pipeline) { p.onFrame = fn }
}

// WithDropHook registers fn to be called from the device thread whenever a
// frame is dropped. fn must not block.
func WithDropHook(fn func(frame audio.AudioFrame)) Option {
	return func(p *Pipeline) { p.onDrop = fn }
}

// Pipeline captures microphone audio and streams encoded frames to a sink.
//
// The lifecycle is Acquire → Start → Stop. Stop may be called at any point,
// any number of times, and returns the pipeline to its initial state so it can
// be reused for the next session.
type Pipeline struct {
	mic        audio.InputDevice
	frameSize  int
	sampleRate int
	queueSize  int
	onFrame    func(audio.AudioFrame, error)
	onDrop     func(audio.AudioFrame)

	mu      sync.Mutex
	stream  audio.Stream
	framer  *Framer
	queue   chan audio.AudioFrame
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	// active gates the device callback; it is cleared before the stream is
	// closed so late callbacks become no-ops.
	active atomic.Bool

	captured atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	warnDrop sync.Once
}

// New creates a Pipeline reading from mic.
func New(mic audio.InputDevice, opts ...Option) *Pipeline {
	p := &Pipeline{
		mic:        mic,
		frameSize:  audio.FrameSize,
		sampleRate: audio.CaptureSampleRate,
		queueSize:  defaultQueueSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format returns the capture format (mono at the configured rate).
func (p *Pipeline) Format() audio.Format {
	return audio.Format{SampleRate: p.sampleRate, Channels: 1}
}

// Acquire opens the microphone without starting delivery. It returns an error
// wrapping [ErrPermissionDenied] if access is refused. Calling Acquire on an
// already acquired pipeline is a no-op.
func (p *Pipeline) Acquire(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return nil
	}

	framer := NewFramer(p.frameSize, p.sampleRate)
	queue := make(chan audio.AudioFrame, p.queueSize)

	stream, err := p.mic.Open(ctx, p.Format(), func(samples []float32) {
		if !p.active.Load() {
			return
		}
		framer.Write(samples, func(f audio.AudioFrame) {
			p.captured.Add(1)
			select {
			case queue <- f:
			default:
				p.dropped.Add(1)
				p.warnDrop.Do(func() {
					slog.Warn("capture: send queue full, dropping frames", "queue", p.queueSize)
				})
				if p.onDrop != nil {
					p.onDrop(f)
				}
			}
		})
	})
	if err != nil {
		return fmt.Errorf("capture: open microphone: %w", err)
	}

	p.stream = stream
	p.framer = framer
	p.queue = queue
	return nil
}

// Start acquires the microphone if needed, starts the device stream and the
// sender goroutine. Every complete frame is encoded and passed to sink in
// capture order. Start on a running pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context, sink Sink) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if p.stream == nil {
		return ErrNotAcquired
	}

	// Frames produced before the sender runs wait in the queue.
	p.active.Store(true)
	if err := p.stream.Start(); err != nil {
		p.active.Store(false)
		return fmt.Errorf("capture: start stream: %w", err)
	}

	sendCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.started = true

	p.wg.Add(1)
	go p.sendLoop(sendCtx, p.queue, sink)
	return nil
}

// sendLoop forwards queued frames to the sink until ctx is cancelled.
// Frames still queued at cancellation are discarded.
func (p *Pipeline) sendLoop(ctx context.Context, queue <-chan audio.AudioFrame, sink Sink) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-queue:
			if ctx.Err() != nil {
				return
			}
			err := sink(ctx, audio.EncodeFrame(f.Samples))
			if err != nil {
				p.failed.Add(1)
				if ctx.Err() == nil {
					slog.Debug("capture: sink rejected frame", "seq", f.Seq, "err", err)
				}
			} else {
				p.sent.Add(1)
			}
			if p.onFrame != nil {
				p.onFrame(f, err)
			}
		}
	}
}

// Stop stops the device stream, ends the sender goroutine and releases the
// microphone. It is idempotent and safe to call before Start or after a
// failed Acquire.
func (p *Pipeline) Stop() error {
	p.active.Store(false)

	p.mu.Lock()
	stream := p.stream
	cancel := p.cancel
	p.stream = nil
	p.cancel = nil
	p.framer = nil
	p.queue = nil
	p.started = false
	p.mu.Unlock()

	var err error
	if stream != nil {
		if cerr := stream.Close(); cerr != nil {
			err = fmt.Errorf("capture: close stream: %w", cerr)
		}
	}
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return err
}

// Running reports whether frames are currently being delivered.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stats returns a snapshot of the pipeline counters. Counters accumulate over
// the lifetime of the Pipeline.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured: p.captured.Load(),
		Sent:     p.sent.Load(),
		Dropped:  p.dropped.Load(),
		Failed:   p.failed.Load(),
	}
}
