package render

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

var (
	red  = colorful.Color{R: 1}
	blue = colorful.Color{B: 1}
	dims = guidance.Dims{Width: 16, Height: 16}
)

func horizontal(c colorful.Color, y, thickness float64) stroke.Stroke {
	return stroke.Stroke{
		Color:     c,
		Thickness: thickness,
		Skeleton:  []r2.Vec{{X: 2, Y: y}, {X: 8, Y: y}, {X: 13, Y: y}},
	}
}

func TestCPURenderCoversSkeleton(t *testing.T) {
	r := NewCPU()
	ind := &painting.Individual{Strokes: []stroke.Stroke{horizontal(red, 8, 4)}}

	img, err := r.Render(ind, dims, dims)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	for _, y := range []int{7, 8, 9} {
		c := img.RGBAAt(8, y)
		assert.GreaterOrEqual(t, c.A, uint8(250), "pixel (8,%d) should be covered", y)
		assert.GreaterOrEqual(t, c.R, uint8(250))
		assert.Zero(t, c.B)
	}
	assert.Zero(t, img.RGBAAt(8, 0).A)
	assert.Zero(t, img.RGBAAt(0, 15).A)
}

func TestCPURenderPaintsInSlotOrder(t *testing.T) {
	r := NewCPU()
	ind := &painting.Individual{Strokes: []stroke.Stroke{
		horizontal(red, 8, 4),
		horizontal(blue, 8, 2),
	}}

	img, err := r.Render(ind, dims, dims)
	require.NoError(t, err)

	top := img.RGBAAt(8, 8)
	assert.GreaterOrEqual(t, top.B, uint8(250), "later stroke lands on top")
	assert.LessOrEqual(t, top.R, uint8(5))

	edge := img.RGBAAt(8, 6)
	assert.Greater(t, edge.R, edge.B, "earlier stroke still shows outside the later one")
}

func TestCPURenderScales(t *testing.T) {
	r := NewCPU()
	ind := &painting.Individual{Strokes: []stroke.Stroke{horizontal(red, 8, 4)}}

	big := guidance.Dims{Width: 32, Height: 32}
	img, err := r.Render(ind, dims, big)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	assert.GreaterOrEqual(t, img.RGBAAt(17, 17).A, uint8(250))
	assert.Zero(t, img.RGBAAt(17, 4).A)
}

func TestCPURenderRejectsNonFiniteGeometry(t *testing.T) {
	r := NewCPU()

	bad := horizontal(red, 8, math.NaN())
	_, err := r.Render(&painting.Individual{Strokes: []stroke.Stroke{bad}}, dims, dims)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRendererFailure))
	assert.True(t, perrors.Is(err, perrors.ErrNumericInstability))

	_, err = r.Render(&painting.Individual{}, guidance.Dims{}, dims)
	assert.True(t, perrors.Is(err, perrors.ErrRendererFailure))
}

func TestCPURenderReusesCanvases(t *testing.T) {
	r := NewCPU()
	ind := &painting.Individual{Strokes: []stroke.Stroke{horizontal(red, 8, 4)}}

	img, err := r.Render(ind, dims, dims)
	require.NoError(t, err)
	Release(r, img)
	assert.Equal(t, 1, r.pool.Idle(16, 16))

	empty, err := r.Render(&painting.Individual{}, dims, dims)
	require.NoError(t, err)
	assert.Same(t, img, empty)
	assert.Zero(t, empty.RGBAAt(8, 8).A, "pooled canvases come back cleared")
}

func TestBufferPoolLimit(t *testing.T) {
	p := NewBufferPool(1)
	a, b := p.Get(4, 4), p.Get(4, 4)
	p.Put(a)
	p.Put(b)
	p.Put(nil)
	assert.Equal(t, 1, p.Idle(4, 4))
	assert.Zero(t, p.Idle(8, 8))
}

func TestCheckpointPath(t *testing.T) {
	tests := []struct {
		base string
		gen  int
		want string
	}{
		{"out.png", 5, "out.gen-5.png"},
		{"runs/a/final.png", 120, "runs/a/final.gen-120.png"},
		{"noext", 1, "noext.gen-1.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckpointPath(tt.base, tt.gen))
	}
}

func TestPNGSaverWritesTargetSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.png")
	ind := &painting.Individual{Strokes: []stroke.Stroke{horizontal(red, 8, 4)}}

	s := NewPNGSaver(NewCPU(), dims, guidance.Dims{Width: 24, Height: 20})
	require.NoError(t, s.Save(ind, path))
	require.NoError(t, s.Checkpoint(ind, path, 3))

	for _, p := range []string{path, filepath.Join(dir, "nested", "out.gen-3.png")} {
		img, err := guidance.DecodeFile(p)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(24, 20), img.Bounds().Size())
	}
}

func TestSaveDims(t *testing.T) {
	src := guidance.Dims{Width: 16, Height: 12}
	tests := []struct {
		name          string
		width, height int
		want          guidance.Dims
	}{
		{"explicit", 32, 24, guidance.Dims{Width: 32, Height: 24}},
		{"zero", 0, 0, src},
		{"one side zero", 32, 0, src},
		{"negative", -32, -24, src},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SaveDims(src, tt.width, tt.height))
		})
	}
}

func TestPNGSaverNegativeTargetUsesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	ind := &painting.Individual{Strokes: []stroke.Stroke{horizontal(red, 8, 4)}}

	s := NewPNGSaver(NewCPU(), dims, guidance.Dims{Width: -24, Height: -20})
	require.NoError(t, s.Save(ind, path))

	img, err := guidance.DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(dims.Width, dims.Height), img.Bounds().Size())
}

func TestCPURenderRejectsNegativeSize(t *testing.T) {
	_, err := NewCPU().Render(&painting.Individual{}, dims, guidance.Dims{Width: -4, Height: -4})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRendererFailure))
}

func TestPNGSaverSurfacesWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewPNGSaver(NewCPU(), dims, guidance.Dims{})
	err := s.Save(&painting.Individual{}, filepath.Join(blocker, "out.png"))
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRendererFailure))
}

func TestDirectionOverlay(t *testing.T) {
	f := guidance.Uniform(32, 32, red, r2.Vec{X: 1}, 1)
	img := DirectionOverlay(f, 8, 2)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())

	// Glyph centred on pixel (4,4) runs horizontally.
	assert.Less(t, img.RGBAAt(9, 9).R, uint8(128))
	assert.Equal(t, uint8(255), img.RGBAAt(9, 1).R)
}
