package guidance

import (
	"image"
	"image/color"
	"math"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/spatial/r2"
)

// FromNormalMap derives a direction map from a tangent-space normal map.
// Each output direction is the normal crossed with the view vector (0,0,1),
// projected onto the image plane.
func FromNormalMap(normalMap image.Image) *image.NRGBA {
	src := toNRGBA(normalMap)
	return mapRows(src.Bounds(), func(x, y int) r2.Vec {
		c := src.NRGBAAt(x, y)
		nx := float64(c.R)/255*2 - 1
		ny := float64(c.G)/255*2 - 1
		nz := float64(c.B)/255*2 - 1
		l := math.Sqrt(nx*nx + ny*ny + nz*nz)
		if l == 0 {
			return r2.Vec{}
		}
		nx, ny = nx/l, ny/l
		// n × (0,0,1) = (ny, -nx, 0)
		return SafeUnit(r2.Vec{X: ny, Y: -nx}, r2.Vec{})
	})
}

// FromEdgeMap derives a direction map that runs perpendicular to the
// luminance gradient of an edge (or plain) image. Flat regions encode as the
// neutral direction.
func FromEdgeMap(edgeMap image.Image) *image.NRGBA {
	src := toNRGBA(edgeMap)
	b := src.Bounds()
	lum := make([]float64, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := src.NRGBAAt(x, y)
			lum[y*b.Dx()+x] = (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255
		}
	}

	at := func(x, y int) float64 {
		x = min(max(x, 0), b.Dx()-1)
		y = min(max(y, 0), b.Dy()-1)
		return lum[y*b.Dx()+x]
	}

	return mapRows(b, func(x, y int) r2.Vec {
		gx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
			(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
		gy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
			(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
		if math.Hypot(gx, gy) < 1e-6 {
			return r2.Vec{}
		}
		return SafeUnit(r2.Vec{X: -gy, Y: gx}, r2.Vec{})
	})
}

// mapRows evaluates fn for every pixel in parallel, one task per row, and
// encodes the result as a direction image.
func mapRows(b image.Rectangle, fn func(x, y int) r2.Vec) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for y := 0; y < b.Dy(); y++ {
		p.Go(func() {
			for x := 0; x < b.Dx(); x++ {
				r, g := EncodeDirection(fn(x, y))
				out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: 0, A: 255})
			}
		})
	}
	p.Wait()
	return out
}
