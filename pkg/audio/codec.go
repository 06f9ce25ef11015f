package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned by [DecodePayload] when the payload is not
// valid standard base64.
var ErrMalformedPayload = errors.New("audio: malformed payload")

// EncodedPayload is the standard, padded base64 text form of a little-endian
// int16 PCM byte buffer. It is what travels over the wire in both directions.
type EncodedPayload string

// EncodeFrame converts float samples to 16-bit PCM and returns its base64
// text form. It is a pure function of its input.
func EncodeFrame(samples []float32) EncodedPayload {
	return EncodedPayload(base64.StdEncoding.EncodeToString(EncodePCM(samples)))
}

// EncodePCM converts float samples to little-endian int16 PCM. Each sample is
// clamped to [-1, 1]; negative values scale by 32768 and positive values by
// 32767, so -1 maps to -32768 and 1 maps to 32767.
func EncodePCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// DecodePayload returns the raw bytes of a base64 payload. Characters outside
// the standard alphabet or invalid padding yield an error wrapping
// [ErrMalformedPayload].
func DecodePayload(p EncodedPayload) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(string(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return b, nil
}
