// Package mock provides in-memory mock implementations of the
// [audio.InputDevice], [audio.OutputDevice], [audio.Platform] and [audio.Stream]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.InputDevice{}
//	p := capture.New(mic)
//	_ = p.Start(ctx, sink)
//	mic.Push(make([]float32, 4096)) // simulate one device callback
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sereno/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream].
type Stream struct {
	mu sync.Mutex

	// StartError is returned by [Stream.Start].
	StartError error

	// CloseError is returned by [Stream.Close].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	started bool
	closed  bool
}

// Start records the call and marks the stream as started.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.started = true
	return nil
}

// Close records the call and marks the stream as closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	s.started = false
	return s.CloseError
}

// Started reports whether Start succeeded and Close has not been called since.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── InputDevice ──────────────────────────────────────────────────────────────

// InputDevice is a mock implementation of [audio.InputDevice]. Tests feed
// samples through [InputDevice.Push], which behaves like one device callback
// on the most recently opened stream.
type InputDevice struct {
	mu sync.Mutex

	// OpenError, if non-nil, is returned by [InputDevice.Open].
	OpenError error

	// OpenCalls records the format passed to every Open call, in order.
	OpenCalls []audio.Format

	// Streams records every stream returned by Open, in order.
	Streams []*Stream

	callback func([]float32)
	current  *Stream
}

// Open records the call and returns a new [Stream], or OpenError.
func (d *InputDevice) Open(_ context.Context, format audio.Format, onSamples func([]float32)) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, format)
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	s := &Stream{}
	d.Streams = append(d.Streams, s)
	d.callback = onSamples
	d.current = s
	return s, nil
}

// Push delivers samples to the callback of the current stream if it is
// started. It reports whether the callback was invoked.
func (d *InputDevice) Push(samples []float32) bool {
	d.mu.Lock()
	cb, s := d.callback, d.current
	d.mu.Unlock()
	if cb == nil || s == nil || !s.Started() {
		return false
	}
	cb(samples)
	return true
}

// CallCountOpen returns the number of Open calls.
func (d *InputDevice) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// ─── OutputDevice ─────────────────────────────────────────────────────────────

// OutputDevice is a mock implementation of [audio.OutputDevice]. Tests pull
// audio with [OutputDevice.Pull], which behaves like one device callback.
type OutputDevice struct {
	mu sync.Mutex

	// OpenError, if non-nil, is returned by [OutputDevice.Open].
	OpenError error

	// OpenCalls records the format passed to every Open call, in order.
	OpenCalls []audio.Format

	// Streams records every stream returned by Open, in order.
	Streams []*Stream

	render  func([]float32)
	current *Stream
}

// Open records the call and returns a new [Stream], or OpenError.
func (d *OutputDevice) Open(_ context.Context, format audio.Format, render func([]float32)) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, format)
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	s := &Stream{}
	d.Streams = append(d.Streams, s)
	d.render = render
	d.current = s
	return s, nil
}

// Pull asks the current started stream to render into out. It reports
// whether the render callback was invoked.
func (d *OutputDevice) Pull(out []float32) bool {
	d.mu.Lock()
	r, s := d.render, d.current
	d.mu.Unlock()
	if r == nil || s == nil || !s.Started() {
		return false
	}
	r(out)
	return true
}

// CallCountOpen returns the number of Open invocations.
func (d *OutputDevice) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform]. Nil devices are
// created on first use.
type Platform struct {
	mu sync.Mutex

	// In is returned by Input.
	In *InputDevice

	// Out is returned by Output.
	Out *OutputDevice

	// CloseError, if non-nil, is returned by Close.
	CloseError error

	// CallCountClose is the number of Close invocations.
	CallCountClose int
}

// Input returns In.
func (p *Platform) Input() audio.InputDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.In == nil {
		p.In = &InputDevice{}
	}
	return p.In
}

// Output returns Out.
func (p *Platform) Output() audio.OutputDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Out == nil {
		p.Out = &OutputDevice{}
	}
	return p.Out
}

// Close records the call and returns CloseError.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return p.CloseError
}
