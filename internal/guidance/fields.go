// Package guidance holds the read-only per-pixel fields that steer stroke
// placement and fitness scoring: target colour, flow direction and importance.
//
// Fields are built once and never mutated, so any number of goroutines may
// read them without locking.
package guidance

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r2"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
)

// Dims is the pixel size of a field or canvas.
type Dims struct {
	Width  int
	Height int
}

// Len returns Width*Height.
func (d Dims) Len() int { return d.Width * d.Height }

// Empty reports whether either side is non-positive.
func (d Dims) Empty() bool { return d.Width <= 0 || d.Height <= 0 }

// Contains reports whether (x, y) is a pixel inside the bounds.
func (d Dims) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < d.Width && y < d.Height
}

// Index returns the row-major flat index of (x, y).
func (d Dims) Index(x, y int) int { return y*d.Width + x }

// Coords is the inverse of Index.
func (d Dims) Coords(i int) (x, y int) { return i % d.Width, i / d.Width }

// Lookup rounds p to the nearest pixel and returns its flat index.
// ok is false when p falls outside the bounds.
func (d Dims) Lookup(p r2.Vec) (i int, ok bool) {
	x := int(math.Round(p.X))
	y := int(math.Round(p.Y))
	if !d.Contains(x, y) {
		return 0, false
	}
	return d.Index(x, y), true
}

// Fields is the immutable set of guidance arrays.
type Fields struct {
	Dims

	// Color is the target appearance, normalized RGB.
	Color []colorful.Color
	// Direction is the local flow orientation in pixel space (x right, y down).
	// Entries are unit length or zero where no orientation is known.
	Direction []r2.Vec
	// Importance is the sampling weight and thickness driver, in [0,1].
	Importance []float64
}

// New validates the arrays and wraps them as Fields. The slices are retained,
// not copied; callers must not modify them afterwards.
func New(dims Dims, color []colorful.Color, direction []r2.Vec, importance []float64) (*Fields, error) {
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, perrors.Errorf(perrors.KindInputMismatch, "invalid guidance dimensions %dx%d", dims.Width, dims.Height).
			WithComponent("guidance")
	}

	n := dims.Len()
	if len(color) != n || len(direction) != n || len(importance) != n {
		return nil, perrors.Errorf(perrors.KindInputMismatch,
			"guidance fields differ in size: color=%d direction=%d importance=%d, want %d",
			len(color), len(direction), len(importance), n).
			WithComponent("guidance")
	}

	for i, w := range importance {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return nil, perrors.Errorf(perrors.KindInputMismatch, "importance[%d]=%v outside [0,1]", i, w).
				WithComponent("guidance")
		}
	}

	return &Fields{
		Dims:       dims,
		Color:      color,
		Direction:  direction,
		Importance: importance,
	}, nil
}

// ColorAt returns the target colour under p, or false outside the bounds.
func (f *Fields) ColorAt(p r2.Vec) (colorful.Color, bool) {
	i, ok := f.Lookup(p)
	if !ok {
		return colorful.Color{}, false
	}
	return f.Color[i], true
}

// DirectionAt returns the flow direction under p. ok is false outside the
// bounds or where the stored direction has zero length.
func (f *Fields) DirectionAt(p r2.Vec) (r2.Vec, bool) {
	i, ok := f.Lookup(p)
	if !ok {
		return r2.Vec{}, false
	}
	d := f.Direction[i]
	if d.X == 0 && d.Y == 0 {
		return r2.Vec{}, false
	}
	return d, true
}

// SafeUnit normalizes v, returning fallback when v has zero or non-finite length.
func SafeUnit(v, fallback r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return r2.Scale(1/n, v)
}
