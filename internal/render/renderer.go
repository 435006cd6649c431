// Package render turns Individuals into pixels. The CPU renderer rasterizes
// each stroke as a round-capped, round-joined polyline with
// golang.org/x/image/vector and composites strokes in slot order.
package render

import (
	"image"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r2"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

// Renderer paints an Individual whose geometry lives in src pixel space onto
// a transparent canvas of size dst. Canvas pixels are premultiplied RGBA.
type Renderer interface {
	Render(ind *painting.Individual, src, dst guidance.Dims) (*image.RGBA, error)
}

// Releaser is implemented by renderers that recycle canvases. Callers done
// with a canvas may hand it back.
type Releaser interface {
	Release(img *image.RGBA)
}

// Release returns img to r when r recycles canvases.
func Release(r Renderer, img *image.RGBA) {
	if rel, ok := r.(Releaser); ok {
		rel.Release(img)
	}
}

// joinSides is the polygon resolution of round joins and caps.
const joinSides = 16

// CPU is a software Renderer. It is safe for concurrent use.
type CPU struct {
	pool *BufferPool
}

// NewCPU returns a CPU renderer backed by its own BufferPool.
func NewCPU() *CPU {
	return &CPU{pool: NewBufferPool(0)}
}

// Render implements Renderer.
func (c *CPU) Render(ind *painting.Individual, src, dst guidance.Dims) (*image.RGBA, error) {
	if src.Empty() || dst.Empty() {
		return nil, perrors.Errorf(perrors.KindRendererFailure, "invalid render size %dx%d -> %dx%d",
			src.Width, src.Height, dst.Width, dst.Height).
			WithOperation("render").
			WithComponent("render")
	}

	canvas := c.pool.Get(dst.Width, dst.Height)
	sx := float64(dst.Width) / float64(src.Width)
	sy := float64(dst.Height) / float64(src.Height)

	var z vector.Rasterizer
	for i, s := range ind.Strokes {
		if err := drawStroke(&z, canvas, s, sx, sy); err != nil {
			c.pool.Put(canvas)
			return nil, perrors.Wrapf(err, perrors.KindRendererFailure, "stroke %d", i).
				WithOperation("render").
				WithComponent("render")
		}
	}
	return canvas, nil
}

// Release implements Releaser.
func (c *CPU) Release(img *image.RGBA) {
	c.pool.Put(img)
}

// drawStroke composites one stroke onto canvas. Skeleton points are pixel
// indices, so they are moved to pixel centres before scaling.
func drawStroke(z *vector.Rasterizer, canvas *image.RGBA, s stroke.Stroke, sx, sy float64) error {
	half := s.Thickness * (sx + sy) / 4
	if !finite(half) || half <= 0 {
		return perrors.Errorf(perrors.KindNumericInstability, "stroke thickness %v", s.Thickness)
	}

	pts := make([]r2.Vec, len(s.Skeleton))
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for i, p := range s.Skeleton {
		q := r2.Vec{X: (p.X + 0.5) * sx, Y: (p.Y + 0.5) * sy}
		if !finite(q.X) || !finite(q.Y) {
			return perrors.Errorf(perrors.KindNumericInstability, "skeleton point %d is %v", i, p)
		}
		pts[i] = q
		lo.X, lo.Y = min(lo.X, q.X), min(lo.Y, q.Y)
		hi.X, hi.Y = max(hi.X, q.X), max(hi.Y, q.Y)
	}
	if len(pts) == 0 {
		return nil
	}

	rect := image.Rect(
		int(math.Floor(lo.X-half))-1, int(math.Floor(lo.Y-half))-1,
		int(math.Ceil(hi.X+half))+1, int(math.Ceil(hi.Y+half))+1,
	).Intersect(canvas.Bounds())
	if rect.Empty() {
		return nil
	}

	z.Reset(rect.Dx(), rect.Dy())
	z.DrawOp = draw.Over
	origin := r2.Vec{X: float64(rect.Min.X), Y: float64(rect.Min.Y)}
	for i := range pts {
		pts[i] = r2.Sub(pts[i], origin)
	}
	addPolyline(z, pts, half)
	z.Draw(canvas, rect, image.NewUniform(s.RGBA()), image.Point{})
	return nil
}

// addPolyline adds a round-joined polyline of half-width h to z. Every
// sub-path is wound the same way, so overlaps accumulate to full coverage
// instead of cancelling.
func addPolyline(z *vector.Rasterizer, pts []r2.Vec, h float64) {
	for i := 1; i < len(pts); i++ {
		p, q := pts[i-1], pts[i]
		d := r2.Sub(q, p)
		l := r2.Norm(d)
		if l == 0 {
			continue
		}
		n := r2.Scale(h/l, r2.Vec{X: -d.Y, Y: d.X})
		a, b := r2.Add(p, n), r2.Add(q, n)
		c, e := r2.Sub(q, n), r2.Sub(p, n)
		z.MoveTo(float32(a.X), float32(a.Y))
		z.LineTo(float32(b.X), float32(b.Y))
		z.LineTo(float32(c.X), float32(c.Y))
		z.LineTo(float32(e.X), float32(e.Y))
		z.ClosePath()
	}
	for _, p := range pts {
		addDisc(z, p, h)
	}
}

// addDisc adds a polygonal disc, wound clockwise in y-up terms to match the
// segment quads built by addPolyline.
func addDisc(z *vector.Rasterizer, c r2.Vec, r float64) {
	for k := 0; k < joinSides; k++ {
		theta := -2 * math.Pi * float64(k) / joinSides
		x := float32(c.X + r*math.Cos(theta))
		y := float32(c.Y + r*math.Sin(theta))
		if k == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
