package visual

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser defaults mirror a browser AnalyserNode.
const (
	DefaultFFTSize         = 512
	DefaultSmoothing       = 0.8
	DefaultMinDecibels     = -100.0
	DefaultMaxDecibels     = -30.0
	minFFTSize, maxFFTSize = 32, 32768
)

// Analyser is a read-only tap on the output signal that exposes its
// frequency spectrum. It keeps the most recent FFTSize mono samples and, on
// request, computes Blackman-windowed FFT magnitudes smoothed over time and
// mapped to bytes between the min and max decibel bounds.
//
// Analyser implements playback.Tap. It never modifies the audio it observes.
// All methods are safe for concurrent use.
type Analyser struct {
	size      int
	smoothing float64
	minDB     float64
	maxDB     float64

	mu       sync.Mutex
	ring     []float64
	pos      int
	fft      *fourier.FFT
	window   []float64
	seq      []float64
	coeffs   []complex128
	smoothed []float64
}

// AnalyserOption configures an [Analyser].
type AnalyserOption func(*Analyser)

// WithFFTSize sets the FFT length. It must be a power of two between 32 and
// 32768; other values are ignored.
func WithFFTSize(n int) AnalyserOption {
	return func(a *Analyser) {
		if n >= minFFTSize && n <= maxFFTSize && n&(n-1) == 0 {
			a.size = n
		}
	}
}

// WithSmoothing sets the time-smoothing constant in [0, 1).
func WithSmoothing(v float64) AnalyserOption {
	return func(a *Analyser) {
		if v >= 0 && v < 1 {
			a.smoothing = v
		}
	}
}

// WithDecibelRange sets the dB values mapped to 0 and 255.
func WithDecibelRange(minDB, maxDB float64) AnalyserOption {
	return func(a *Analyser) {
		if minDB < maxDB {
			a.minDB, a.maxDB = minDB, maxDB
		}
	}
}

// NewAnalyser creates an Analyser.
func NewAnalyser(opts ...AnalyserOption) *Analyser {
	a := &Analyser{
		size:      DefaultFFTSize,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDecibels,
		maxDB:     DefaultMaxDecibels,
	}
	for _, o := range opts {
		o(a)
	}
	a.ring = make([]float64, a.size)
	a.fft = fourier.NewFFT(a.size)
	a.window = blackman(a.size)
	a.seq = make([]float64, a.size)
	a.coeffs = make([]complex128, a.size/2+1)
	a.smoothed = make([]float64, a.size/2)
	return a
}

// FrequencyBinCount returns the number of frequency bins (half the FFT size).
func (a *Analyser) FrequencyBinCount() int { return a.size / 2 }

// Process records an interleaved block, down-mixed to mono.
func (a *Analyser) Process(block []float32, channels int) {
	if channels < 1 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	scale := 1 / float64(channels)
	for i := 0; i+channels <= len(block); i += channels {
		var sum float64
		for k := range channels {
			sum += float64(block[i+k])
		}
		a.ring[a.pos] = sum * scale
		a.pos = (a.pos + 1) % a.size
	}
}

// ByteFrequencyData fills dst with the current spectrum, one byte per bin,
// and returns the number of bins written (min(len(dst), FrequencyBinCount)).
// Each call advances the time smoothing by one step.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.size {
		a.seq[i] = a.ring[(a.pos+i)%a.size] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	n := min(len(dst), len(a.smoothed))
	span := a.maxDB - a.minDB
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(a.size)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if k >= n {
			continue
		}
		db := a.minDB
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := 255 * (db - a.minDB) / span
		dst[k] = byte(math.Max(0, math.Min(255, v)))
	}
	return n
}

// Reset clears the sample history and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// blackman returns the Blackman window (alpha 0.16) of length n.
func blackman(n int) []float64 {
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
