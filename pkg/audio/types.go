package audio

import "time"

// FrameSize is the number of samples in one captured [AudioFrame].
const FrameSize = 4096

// CaptureSampleRate is the sample rate in Hz at which microphone audio is
// captured and streamed to the remote session.
const CaptureSampleRate = 16000

// AudioFrame is one fixed-length block of captured mono audio. Frames are the
// atomic unit of the outbound stream: produced by the capture pipeline,
// encoded exactly once, then handed to the transport.
type AudioFrame struct {
	// Samples holds FrameSize float32 samples, nominally in [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for microphone capture).
	SampleRate int

	// Seq is the zero-based capture order of the frame within its stream.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Buffer is a block of decoded, playable audio. Each entry of Channels holds
// the samples of one channel; all channels have the same length.
//
// Once handed to an output context a Buffer is owned by it and must not be
// mutated.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NumChannels returns the channel count of b.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Seconds returns the playback duration of b in seconds.
func (b *Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Duration returns the playback duration of b.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Format returns the sample rate and channel count of b.
func (b *Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.NumChannels()}
}
