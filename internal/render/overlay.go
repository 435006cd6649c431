package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/copyleftdev/SBRGA/internal/guidance"
)

// DirectionOverlay draws the flow field of f as short line glyphs, one every
// spacing pixels, on a white canvas scaled by scale. Pixels with no known
// direction get a dot.
func DirectionOverlay(f *guidance.Fields, spacing int, scale float64) *image.RGBA {
	if spacing <= 0 {
		spacing = 8
	}
	if scale <= 0 {
		scale = 1
	}

	w := int(float64(f.Width) * scale)
	h := int(float64(f.Height) * scale)
	canvas := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	var z vector.Rasterizer
	z.Reset(canvas.Bounds().Dx(), canvas.Bounds().Dy())
	z.DrawOp = draw.Over

	half := float64(spacing) * scale * 0.4
	width := max(scale*0.5, 0.5)
	for y := spacing / 2; y < f.Height; y += spacing {
		for x := spacing / 2; x < f.Width; x += spacing {
			c := r2.Vec{X: (float64(x) + 0.5) * scale, Y: (float64(y) + 0.5) * scale}
			d, ok := f.DirectionAt(r2.Vec{X: float64(x), Y: float64(y)})
			if !ok {
				addDisc(&z, c, width*1.5)
				continue
			}
			d = r2.Scale(half, guidance.SafeUnit(d, r2.Vec{}))
			addPolyline(&z, []r2.Vec{r2.Sub(c, d), r2.Add(c, d)}, width)
		}
	}

	z.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{})
	return canvas
}
