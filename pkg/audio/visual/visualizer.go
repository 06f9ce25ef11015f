// Package visual renders a circular frequency visualisation of the playback
// signal.
//
// An [Analyser] taps the output context and exposes the current spectrum.
// A [Visualizer] runs a render task paced by a display-refresh [Ticker]
// (never by audio callbacks) that reads the spectrum and draws, on a
// [Canvas]:
//
//   - faint reference rings,
//   - a reactive waveform ring whose radius at each angle follows one
//     frequency bin raised to a power of at least two,
//   - a core glow whose size pulses with the average bin level.
//
// Start and Stop bound the task to the session; after Stop returns nothing
// draws again until the next Start, and the canvas is cleared.
package visual

import (
	"context"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFPS is the frame rate used when no ticker is configured.
const DefaultFPS = 60

// minExponent is the smallest waveform amplitude exponent accepted.
const minExponent = 2.0

// FrequencySource provides spectrum data. [Analyser] implements it.
type FrequencySource interface {
	FrequencyBinCount() int
	ByteFrequencyData(dst []byte) int
}

// Ticker paces the render task.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

// NewTimeTicker returns a [Ticker] firing fps times per second.
func NewTimeTicker(fps int) Ticker {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return timeTicker{time.NewTicker(time.Second / time.Duration(fps))}
}

// Display describes the target surface in layout units plus the device
// pixel ratio.
type Display struct {
	Width, Height int
	PixelRatio    float64
}

// backing returns the backing-store size for d.
func (d Display) backing() (int, int) {
	dpr := d.PixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	return int(math.Round(float64(d.Width) * dpr)), int(math.Round(float64(d.Height) * dpr))
}

// Palette holds the colours of the visualisation (non-premultiplied).
type Palette struct {
	Rings    color.NRGBA
	Waveform color.NRGBA
	Core     color.NRGBA
}

// DefaultPalette is a calm teal scheme.
var DefaultPalette = Palette{
	Rings:    color.NRGBA{R: 120, G: 200, B: 190, A: 48},
	Waveform: color.NRGBA{R: 64, G: 196, B: 176, A: 160},
	Core:     color.NRGBA{R: 150, G: 240, B: 220, A: 220},
}

// Option configures a [Visualizer].
type Option func(*Visualizer)

// WithTicker sets the factory for the frame ticker. A new ticker is created
// on every Start.
func WithTicker(newTicker func() Ticker) Option {
	return func(v *Visualizer) { v.newTicker = newTicker }
}

// WithFPS paces rendering with a [time.Ticker] at fps.
func WithFPS(fps int) Option {
	return func(v *Visualizer) {
		v.newTicker = func() Ticker { return NewTimeTicker(fps) }
	}
}

// WithDisplay sets the function queried each frame for the display size.
func WithDisplay(fn func() Display) Option {
	return func(v *Visualizer) { v.display = fn }
}

// WithExponent sets the waveform amplitude exponent. Values below 2 are
// raised to 2.
func WithExponent(e float64) Option {
	return func(v *Visualizer) { v.exponent = math.Max(minExponent, e) }
}

// WithPalette overrides the colours.
func WithPalette(p Palette) Option {
	return func(v *Visualizer) { v.palette = p }
}

// Visualizer draws the spectrum of a [FrequencySource] on a [Canvas].
type Visualizer struct {
	src       FrequencySource
	canvas    Canvas
	newTicker func() Ticker
	display   func() Display
	exponent  float64
	palette   Palette

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	frames atomic.Uint64
	pulse  atomic.Uint64 // math.Float64bits of the last core pulse
}

// New creates a Visualizer. The default display is the canvas' current size
// at a pixel ratio of 1.
func New(src FrequencySource, canvas Canvas, opts ...Option) *Visualizer {
	v := &Visualizer{
		src:      src,
		canvas:   canvas,
		exponent: minExponent,
		palette:  DefaultPalette,
	}
	v.newTicker = func() Ticker { return NewTimeTicker(DefaultFPS) }
	w, h := canvas.Size()
	v.display = func() Display { return Display{Width: w, Height: h, PixelRatio: 1} }
	for _, o := range opts {
		o(v)
	}
	return v
}

// Start launches the render task. Calling Start while running is a no-op.
func (v *Visualizer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.done = make(chan struct{})
	v.running = true
	go v.loop(ctx, v.newTicker(), v.done)
}

// Stop cancels the render task, waits for it to exit and clears the canvas.
// No frame is drawn after Stop returns. Idempotent.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	v.running = false
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()

	cancel()
	<-done
	v.canvas.Clear()
	v.canvas.Present()
	v.pulse.Store(0)
}

// Running reports whether the render task is active.
func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// Frames returns the number of frames drawn since creation.
func (v *Visualizer) Frames() uint64 { return v.frames.Load() }

// Pulse returns the core pulse level of the last frame in [0, 1].
func (v *Visualizer) Pulse() float64 { return math.Float64frombits(v.pulse.Load()) }

func (v *Visualizer) loop(ctx context.Context, t Ticker, done chan<- struct{}) {
	defer close(done)
	defer t.Stop()

	bins := make([]byte, v.src.FrequencyBinCount())
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if ctx.Err() != nil {
				return
			}
			v.DrawFrame(bins)
		}
	}
}

// DrawFrame renders one frame using bins as scratch space. The render task
// calls it on every tick; it is exported for single-frame rendering.
func (v *Visualizer) DrawFrame(bins []byte) {
	bw, bh := v.display().backing()
	if w, h := v.canvas.Size(); w != bw || h != bh {
		v.canvas.Resize(bw, bh)
	}

	n := v.src.ByteFrequencyData(bins)
	bins = bins[:n]
	pulse := average(bins)
	v.pulse.Store(math.Float64bits(pulse))

	center := Point{X: float64(bw) / 2, Y: float64(bh) / 2}
	base := math.Min(float64(bw), float64(bh)) * 0.28
	lineW := math.Max(1, base/90)

	v.canvas.Clear()

	rings := premul(v.palette.Rings)
	for _, f := range []float64{0.55, 1.0, 1.45} {
		v.canvas.StrokeCircle(center, base*f, lineW, rings)
	}

	if len(bins) > 0 {
		v.canvas.FillPolygon(WaveformPoints(bins, center, base, base*0.6, v.exponent), premul(v.palette.Waveform))
	}

	v.canvas.FillGlow(center, base*(0.35+0.3*pulse), premul(v.palette.Core))
	v.canvas.Present()
	v.frames.Add(1)
}

// WaveformPoints maps bins around a full circle: bin i sits at angle
// 2πi/len(bins) with radius base + amp·(bin/255)^exponent.
func WaveformPoints(bins []byte, center Point, base, amp, exponent float64) []Point {
	pts := make([]Point, len(bins))
	for i, b := range bins {
		theta := 2*math.Pi*float64(i)/float64(len(bins)) - math.Pi/2
		r := base + amp*math.Pow(float64(b)/255, exponent)
		pts[i] = Point{X: center.X + r*math.Cos(theta), Y: center.Y + r*math.Sin(theta)}
	}
	return pts
}

// average returns the mean bin value scaled to [0, 1].
func average(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

func premul(c color.NRGBA) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}
