// Package portaudio implements [audio.Platform] on top of the PortAudio
// library, using the system default input and output devices.
//
// PortAudio must be initialised once per process; [New] does that and
// [Platform.Close] terminates it.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/sereno/pkg/audio"
)

// DefaultFramesPerBuffer is the device buffer size in frames.
const DefaultFramesPerBuffer = 1024

// Compile-time interface assertions.
var (
	_ audio.Platform     = (*Platform)(nil)
	_ audio.InputDevice  = (*inputDevice)(nil)
	_ audio.OutputDevice = (*outputDevice)(nil)
	_ audio.Stream       = (*stream)(nil)
)

// Platform is the PortAudio audio backend.
type Platform struct {
	framesPerBuffer int
	closeOnce       sync.Once
	closeErr        error
}

// Option configures a [Platform].
type Option func(*Platform)

// WithFramesPerBuffer sets the device buffer size. Smaller buffers lower
// latency at the cost of more callbacks.
func WithFramesPerBuffer(n int) Option {
	return func(p *Platform) {
		if n > 0 {
			p.framesPerBuffer = n
		}
	}
}

// New initialises PortAudio and returns the platform.
func New(opts ...Option) (*Platform, error) {
	p := &Platform{framesPerBuffer: DefaultFramesPerBuffer}
	for _, o := range opts {
		o(p)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return p, nil
}

// Input returns the default capture device.
func (p *Platform) Input() audio.InputDevice { return &inputDevice{p: p} }

// Output returns the default playback device.
func (p *Platform) Output() audio.OutputDevice { return &outputDevice{p: p} }

// Close terminates PortAudio. It is idempotent.
func (p *Platform) Close() error {
	p.closeOnce.Do(func() {
		if err := portaudio.Terminate(); err != nil {
			p.closeErr = fmt.Errorf("portaudio: terminate: %w", err)
		}
	})
	return p.closeErr
}

type inputDevice struct{ p *Platform }

func (d *inputDevice) Open(ctx context.Context, format audio.Format, onSamples func([]float32)) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), d.p.framesPerBuffer,
		func(in []float32) { onSamples(in) })
	if err != nil {
		return nil, classify("open input stream", err)
	}
	return &stream{s: s}, nil
}

type outputDevice struct{ p *Platform }

func (d *outputDevice) Open(ctx context.Context, format audio.Format, render func([]float32)) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), d.p.framesPerBuffer,
		func(out []float32) { render(out) })
	if err != nil {
		return nil, classify("open output stream", err)
	}
	return &stream{s: s}, nil
}

// stream adapts a PortAudio stream to [audio.Stream].
type stream struct {
	s *portaudio.Stream

	mu      sync.Mutex
	started bool
	closed  bool
}

func (st *stream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return errors.New("portaudio: stream closed")
	}
	if st.started {
		return nil
	}
	if err := st.s.Start(); err != nil {
		return classify("start stream", err)
	}
	st.started = true
	return nil
}

func (st *stream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	st.closed = true

	var errs []error
	if st.started {
		if err := st.s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
		}
	}
	if err := st.s.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	return errors.Join(errs...)
}

// classify wraps err with op and marks host errors that indicate refused
// device access with [audio.ErrPermissionDenied].
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("portaudio: %s: %w: %w", op, audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("portaudio: %s: %w", op, err)
}
