// Package audio defines the sample types, wire codec and device abstractions
// of the live voice pipeline.
//
// The two device abstractions are:
//
//   - [InputDevice]: opens a microphone stream that delivers float samples
//     through a callback.
//   - [OutputDevice]: opens a speaker stream that pulls float samples from a
//     render callback.
//
// Both return a [Stream] whose Start begins delivery and whose Close stops it
// and releases the device. Implementations live in adapter packages
// (e.g. audio/portaudio); tests use audio/mock.
//
// This package lives under pkg/ because external code (third-party device
// adapters) is expected to implement [InputDevice] and [OutputDevice].
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [InputDevice.Open] when the user or the
// operating system refuses microphone access.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// Stream is an open device stream.
//
// Implementations must make Close idempotent and safe to call on a stream
// that was never started.
type Stream interface {
	// Start begins delivering (input) or pulling (output) samples.
	Start() error

	// Close stops the stream and releases the device. After Close returns the
	// stream's callback is not invoked again.
	Close() error
}

// InputDevice opens capture streams.
type InputDevice interface {
	// Open requests access to the device in the given format. onSamples is
	// invoked from the device thread with interleaved float32 samples; the
	// slice is only valid for the duration of the call. Open returns an error
	// wrapping [ErrPermissionDenied] if access is refused.
	Open(ctx context.Context, format Format, onSamples func([]float32)) (Stream, error)
}

// OutputDevice opens playback streams.
type OutputDevice interface {
	// Open prepares the device in the given format. render is invoked from the
	// device thread and must fill the whole slice with interleaved float32
	// samples; it must not block.
	Open(ctx context.Context, format Format, render func(out []float32)) (Stream, error)
}

// Platform bundles the input and output devices of one audio backend.
type Platform interface {
	// Input returns the capture device.
	Input() InputDevice

	// Output returns the playback device.
	Output() OutputDevice

	// Close releases backend-wide resources. Streams opened from the
	// platform must be closed first.
	Close() error
}
