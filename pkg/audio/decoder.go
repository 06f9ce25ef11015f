package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// ErrUnsupportedFormat is returned by [Decode] when the byte length does not
// describe a whole number of int16 sample frames, or the format itself is
// invalid.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Decode interprets b as interleaved little-endian int16 PCM with the given
// channel count and returns a playable [Buffer] at sampleRate. Samples are
// normalised by dividing by 32768. Decode never resamples; the declared rate
// is carried through unchanged.
func Decode(b []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrUnsupportedFormat, sampleRate, channels)
	}
	frameBytes := 2 * channels
	if len(b)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrUnsupportedFormat, len(b), frameBytes)
	}

	frames := len(b) / frameBytes
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := range frames {
		for ch := range channels {
			off := (i*channels + ch) * 2
			v := int16(binary.LittleEndian.Uint16(b[off:]))
			buf.Channels[ch][i] = float32(v) / 32768
		}
	}
	return buf, nil
}

// ParseMIMEType extracts the PCM format from a media type such as
// "audio/pcm;rate=24000". Missing parameters fall back to def.
func ParseMIMEType(s string, def Format) (Format, error) {
	if s == "" {
		return def, nil
	}
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		return def, fmt.Errorf("%w: %q: %v", ErrUnsupportedFormat, s, err)
	}
	if !strings.HasPrefix(mediaType, "audio/pcm") && mediaType != "audio/l16" {
		return def, fmt.Errorf("%w: media type %q", ErrUnsupportedFormat, mediaType)
	}
	f := def
	if r, ok := params["rate"]; ok {
		n, err := strconv.Atoi(r)
		if err != nil || n <= 0 {
			return def, fmt.Errorf("%w: rate %q", ErrUnsupportedFormat, r)
		}
		f.SampleRate = n
	}
	if c, ok := params["channels"]; ok {
		n, err := strconv.Atoi(c)
		if err != nil || n <= 0 {
			return def, fmt.Errorf("%w: channels %q", ErrUnsupportedFormat, c)
		}
		f.Channels = n
	}
	return f, nil
}

// MIMEType returns the media type string announcing 16-bit PCM at rate.
func MIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}
