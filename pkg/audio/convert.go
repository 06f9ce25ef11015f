package audio

import (
	"fmt"
	"log/slog"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// FormatConverter adapts decoded buffers to a target format. Channel
// conversion runs before rate conversion when it reduces the channel count,
// and after it otherwise, so the resampler always works on the smaller
// stream. The resampler keeps filter state between calls, which makes
// consecutive chunks of one stream join without clicks.
//
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target Format

	warnedMismatch sync.Once
	rs             resampling.Resampler
	rsFrom         Format
}

// Convert returns buf in the target format. If buf already matches, it is
// returned unchanged (zero allocation).
func (c *FormatConverter) Convert(buf *Buffer) (*Buffer, error) {
	src := buf.Format()
	if src == c.Target {
		return buf, nil
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", src.String(),
			"to", c.Target.String(),
		)
	})

	channels := buf.Channels
	if len(channels) > c.Target.Channels {
		channels = MixChannels(channels, c.Target.Channels)
	}

	if src.SampleRate != c.Target.SampleRate {
		var err error
		channels, err = c.resample(channels, src.SampleRate)
		if err != nil {
			return nil, err
		}
	}

	if len(channels) != c.Target.Channels {
		channels = MixChannels(channels, c.Target.Channels)
	}

	return &Buffer{Channels: channels, SampleRate: c.Target.SampleRate}, nil
}

// Reset drops the resampler state. The next Convert call starts a fresh
// stream.
func (c *FormatConverter) Reset() {
	c.rs = nil
	c.rsFrom = Format{}
}

func (c *FormatConverter) resample(channels [][]float32, rate int) ([][]float32, error) {
	n := len(channels)
	from := Format{SampleRate: rate, Channels: n}
	if c.rs == nil || c.rsFrom != from {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(rate),
			OutputRate: float64(c.Target.SampleRate),
			Channels:   n,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("audio: create resampler %s -> %dHz: %w", from, c.Target.SampleRate, err)
		}
		c.rs = rs
		c.rsFrom = from
	}

	frames := 0
	if n > 0 {
		frames = len(channels[0])
	}
	in := make([]float64, frames*n)
	for i := range frames {
		for ch := range n {
			in[i*n+ch] = float64(channels[ch][i])
		}
	}

	out, err := c.rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	outFrames := len(out) / n
	res := make([][]float32, n)
	for ch := range res {
		res[ch] = make([]float32, outFrames)
	}
	for i := range outFrames {
		for ch := range n {
			res[ch][i] = float32(out[i*n+ch])
		}
	}
	return res, nil
}

// MixChannels converts per-channel samples to n channels. Downmixing
// averages all source channels into every output channel; upmixing repeats
// the source channels cyclically (mono to stereo duplicates the signal).
func MixChannels(channels [][]float32, n int) [][]float32 {
	if len(channels) == n || len(channels) == 0 || n < 1 {
		return channels
	}
	frames := len(channels[0])
	out := make([][]float32, n)

	if len(channels) > n {
		mono := make([]float32, frames)
		scale := 1 / float32(len(channels))
		for _, src := range channels {
			for i, v := range src {
				mono[i] += v * scale
			}
		}
		for ch := range out {
			out[ch] = mono
			if ch > 0 {
				out[ch] = append([]float32(nil), mono...)
			}
		}
		return out
	}

	for ch := range out {
		out[ch] = append([]float32(nil), channels[ch%len(channels)]...)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
