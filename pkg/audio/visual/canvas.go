package visual

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

// Point is a position in backing-store pixels.
type Point struct{ X, Y float64 }

// Canvas is the drawing surface of a [Visualizer]. Coordinates are in
// backing-store pixels, i.e. display size multiplied by the device pixel
// ratio.
type Canvas interface {
	// Size returns the backing-store size in pixels.
	Size() (w, h int)
	// Resize reallocates the backing store. It also clears it.
	Resize(w, h int)
	// Clear erases the whole backing store to transparent.
	Clear()
	// StrokeCircle draws a circle outline of the given line width.
	StrokeCircle(center Point, r, width float64, c color.RGBA)
	// FillPolygon fills the closed polygon through pts.
	FillPolygon(pts []Point, c color.RGBA)
	// FillGlow fills a disc of radius r whose alpha falls off from c at the
	// center to transparent at the edge.
	FillGlow(center Point, r float64, c color.RGBA)
	// Present publishes the frame drawn since the previous Present.
	Present()
}

// circleSegments is the number of straight segments used to approximate a
// circle.
const circleSegments = 96

// glowSteps is the number of concentric discs composited for a glow.
const glowSteps = 12

// RasterCanvas is an in-memory [Canvas] rasterised with
// golang.org/x/image/vector. It double-buffers: drawing goes to a back
// buffer, Present copies it to the front buffer that [RasterCanvas.Snapshot]
// and [RasterCanvas.Image] read.
//
// All methods are safe for concurrent use.
type RasterCanvas struct {
	mu    sync.Mutex
	back  *image.RGBA
	front *image.RGBA
	z     *vector.Rasterizer
	// resizes counts backing-store reallocations.
	resizes int
}

// NewRasterCanvas returns a w×h canvas.
func NewRasterCanvas(w, h int) *RasterCanvas {
	c := &RasterCanvas{}
	c.alloc(w, h)
	return c
}

func (c *RasterCanvas) alloc(w, h int) {
	w, h = max(w, 1), max(h, 1)
	c.back = image.NewRGBA(image.Rect(0, 0, w, h))
	c.front = image.NewRGBA(image.Rect(0, 0, w, h))
	c.z = vector.NewRasterizer(w, h)
}

// Size implements [Canvas].
func (c *RasterCanvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.back.Bounds()
	return b.Dx(), b.Dy()
}

// Resize implements [Canvas].
func (c *RasterCanvas) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alloc(w, h)
	c.resizes++
}

// Resizes returns how many times the backing store was reallocated.
func (c *RasterCanvas) Resizes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resizes
}

// Clear implements [Canvas].
func (c *RasterCanvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	draw.Draw(c.back, c.back.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// StrokeCircle implements [Canvas]. The outline is filled as an annulus: the
// outer circle is traced counter-clockwise and the inner one clockwise so
// the inner area cancels out.
func (c *RasterCanvas) StrokeCircle(center Point, r, width float64, col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetZ()
	outer, inner := r+width/2, math.Max(0, r-width/2)
	c.circlePath(center, outer, false)
	if inner > 0 {
		c.circlePath(center, inner, true)
	}
	c.drawZ(col)
}

// FillPolygon implements [Canvas].
func (c *RasterCanvas) FillPolygon(pts []Point, col color.RGBA) {
	if len(pts) < 3 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetZ()
	c.z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		c.z.LineTo(float32(p.X), float32(p.Y))
	}
	c.z.ClosePath()
	c.drawZ(col)
}

// FillGlow implements [Canvas] by compositing concentric discs, each adding
// a fraction of the alpha, so opacity accumulates toward the center.
func (c *RasterCanvas) FillGlow(center Point, r float64, col color.RGBA) {
	if r <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	step := premultiply(col, 1/float64(glowSteps))
	for i := glowSteps; i > 0; i-- {
		c.resetZ()
		c.circlePath(center, r*float64(i)/glowSteps, false)
		c.drawZ(step)
	}
}

// Present implements [Canvas].
func (c *RasterCanvas) Present() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.front.Bounds() != c.back.Bounds() {
		c.front = image.NewRGBA(c.back.Bounds())
	}
	copy(c.front.Pix, c.back.Pix)
}

// Image returns a copy of the last presented frame.
func (c *RasterCanvas) Image() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	img := image.NewRGBA(c.front.Bounds())
	copy(img.Pix, c.front.Pix)
	return img
}

// Snapshot encodes the last presented frame as PNG.
func (c *RasterCanvas) Snapshot(w io.Writer) error {
	return png.Encode(w, c.Image())
}

func (c *RasterCanvas) resetZ() {
	b := c.back.Bounds()
	c.z.Reset(b.Dx(), b.Dy())
	c.z.DrawOp = draw.Over
}

func (c *RasterCanvas) drawZ(col color.RGBA) {
	c.z.Draw(c.back, c.back.Bounds(), image.NewUniform(col), image.Point{})
}

// circlePath adds a closed circle to the rasteriser. reverse traces it
// clockwise.
func (c *RasterCanvas) circlePath(center Point, r float64, reverse bool) {
	for i := 0; i <= circleSegments; i++ {
		k := i
		if reverse {
			k = circleSegments - i
		}
		a := 2 * math.Pi * float64(k) / circleSegments
		x := float32(center.X + r*math.Cos(a))
		y := float32(center.Y + r*math.Sin(a))
		if i == 0 {
			c.z.MoveTo(x, y)
		} else {
			c.z.LineTo(x, y)
		}
	}
	c.z.ClosePath()
}

// premultiply returns col with its alpha scaled by f, premultiplied as
// color.RGBA requires.
func premultiply(col color.RGBA, f float64) color.RGBA {
	a := float64(col.A) * f
	k := a / 255
	return color.RGBA{
		R: uint8(float64(col.R) * k),
		G: uint8(float64(col.G) * k),
		B: uint8(float64(col.B) * k),
		A: uint8(a),
	}
}
