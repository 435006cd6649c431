// Package stroke synthesizes single brush strokes by hopping outward from a
// seed pixel along the guidance flow field.
package stroke

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r2"
)

// Stroke is one brush mark. Strokes are immutable once synthesized; operators
// replace whole strokes and may share a Skeleton between individuals.
type Stroke struct {
	// Seed is the pixel the stroke grew from.
	Seed image.Point
	// Color is the seed pixel's guidance colour. Strokes are always opaque.
	Color colorful.Color
	// Thickness is the brush width in pixels, always > 0.
	Thickness float64
	// Skeleton is the ordered centre line through the seed.
	Skeleton []r2.Vec
	// Importance is copied from the seed pixel and orders strokes for painting.
	Importance float64
}

// RGBA returns the stroke colour as an opaque 8-bit colour.
func (s Stroke) RGBA() color.NRGBA {
	r, g, b := s.Color.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Length returns the arc length of the skeleton.
func (s Stroke) Length() float64 {
	var l float64
	for i := 1; i < len(s.Skeleton); i++ {
		l += r2.Norm(r2.Sub(s.Skeleton[i], s.Skeleton[i-1]))
	}
	return l
}

// Equal reports whether two strokes are identical in every field.
func (s Stroke) Equal(o Stroke) bool {
	if s.Seed != o.Seed || s.Color != o.Color || s.Thickness != o.Thickness ||
		s.Importance != o.Importance || len(s.Skeleton) != len(o.Skeleton) {
		return false
	}
	if len(s.Skeleton) > 0 && &s.Skeleton[0] == &o.Skeleton[0] {
		return true
	}
	for i := range s.Skeleton {
		if s.Skeleton[i] != o.Skeleton[i] {
			return false
		}
	}
	return true
}

// Bounds returns the bounding box of the skeleton grown by half the thickness.
func (s Stroke) Bounds() (lo, hi r2.Vec) {
	if len(s.Skeleton) == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	lo, hi = s.Skeleton[0], s.Skeleton[0]
	for _, p := range s.Skeleton[1:] {
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	h := s.Thickness / 2
	return r2.Vec{X: lo.X - h, Y: lo.Y - h}, r2.Vec{X: hi.X + h, Y: hi.Y + h}
}
