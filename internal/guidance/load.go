package guidance

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/spatial/r2"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
)

// LoadFiles decodes the three guidance images and builds Fields from them.
func LoadFiles(colorPath, directionPath, importancePath string) (*Fields, error) {
	colorImg, err := DecodeFile(colorPath)
	if err != nil {
		return nil, err
	}
	dirImg, err := DecodeFile(directionPath)
	if err != nil {
		return nil, err
	}
	impImg, err := DecodeFile(importancePath)
	if err != nil {
		return nil, err
	}
	return FromImages(colorImg, dirImg, impImg)
}

// DecodeFile opens and decodes a PNG, JPEG, BMP or TIFF image.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// FromImages converts decoded colour, direction and importance images into
// Fields. All three must share the same size. Importance is read from the
// red channel; direction from red/green as (c/255)*2-1.
func FromImages(colorImg, directionImg, importanceImg image.Image) (*Fields, error) {
	cb, db, ib := colorImg.Bounds(), directionImg.Bounds(), importanceImg.Bounds()
	if cb.Size() != db.Size() || db.Size() != ib.Size() {
		return nil, perrors.Errorf(perrors.KindInputMismatch,
			"the maps are different sizes: color=%v direction=%v importance=%v", cb.Size(), db.Size(), ib.Size()).
			WithOperation("load").
			WithComponent("guidance")
	}

	dims := Dims{Width: cb.Dx(), Height: cb.Dy()}
	colorPix := toNRGBA(colorImg)
	dirPix := toNRGBA(directionImg)
	impPix := toNRGBA(importanceImg)

	n := dims.Len()
	colors := make([]colorful.Color, n)
	directions := make([]r2.Vec, n)
	importance := make([]float64, n)

	for y := 0; y < dims.Height; y++ {
		for x := 0; x < dims.Width; x++ {
			i := dims.Index(x, y)
			c := colorPix.NRGBAAt(x, y)
			colors[i] = colorful.Color{
				R: float64(c.R) / 255,
				G: float64(c.G) / 255,
				B: float64(c.B) / 255,
			}
			d := dirPix.NRGBAAt(x, y)
			directions[i] = DecodeDirection(d.R, d.G)
			importance[i] = float64(impPix.NRGBAAt(x, y).R) / 255
		}
	}

	return New(dims, colors, directions, importance)
}

// toNRGBA copies img into a zero-origin NRGBA image.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// DecodeDirection maps an encoded (r, g) byte pair to a unit vector. The
// neutral encoding (near 128,128) decodes to the zero vector.
func DecodeDirection(r, g uint8) r2.Vec {
	v := r2.Vec{
		X: float64(r)/255*2 - 1,
		Y: float64(g)/255*2 - 1,
	}
	if r2.Norm(v) < 2.0/255 {
		return r2.Vec{}
	}
	return SafeUnit(v, r2.Vec{})
}

// EncodeDirection is the inverse of DecodeDirection for unit vectors.
func EncodeDirection(v r2.Vec) (r, g uint8) {
	enc := func(c float64) uint8 {
		c = (c + 1) * 0.5 * 255
		if c < 0 {
			c = 0
		}
		if c > 255 {
			c = 255
		}
		return uint8(c + 0.5)
	}
	return enc(v.X), enc(v.Y)
}
