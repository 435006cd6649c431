package guidance

import (
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r2"
)

// Uniform builds width×height fields with one colour, one direction and one
// importance value everywhere. It panics on invalid arguments and is meant
// for tests and examples.
func Uniform(width, height int, c colorful.Color, dir r2.Vec, importance float64) *Fields {
	dims := Dims{Width: width, Height: height}
	n := dims.Len()
	colors := make([]colorful.Color, n)
	dirs := make([]r2.Vec, n)
	imp := make([]float64, n)
	for i := 0; i < n; i++ {
		colors[i] = c
		dirs[i] = dir
		imp[i] = importance
	}
	f, err := New(dims, colors, dirs, imp)
	if err != nil {
		panic(err)
	}
	return f
}

// Gradient builds fields with a black-to-red horizontal colour ramp, a
// vertical flow and importance rising from left to right.
func Gradient(width, height int) *Fields {
	dims := Dims{Width: width, Height: height}
	n := dims.Len()
	colors := make([]colorful.Color, n)
	dirs := make([]r2.Vec, n)
	imp := make([]float64, n)
	for i := 0; i < n; i++ {
		x, _ := dims.Coords(i)
		t := float64(x) / float64(max(width-1, 1))
		colors[i] = colorful.Color{R: t, G: 0.2, B: 0.2}
		dirs[i] = r2.Vec{X: 0, Y: 1}
		imp[i] = 0.1 + 0.9*t
	}
	f, err := New(dims, colors, dirs, imp)
	if err != nil {
		panic(err)
	}
	return f
}
