package fitness

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

var gray = colorful.Color{R: 128.0 / 255, G: 128.0 / 255, B: 128.0 / 255}

func filled(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func cover(c colorful.Color) *painting.Individual {
	return &painting.Individual{Strokes: []stroke.Stroke{{
		Color:     c,
		Thickness: 12,
		Skeleton:  []r2.Vec{{X: 0, Y: 1.5}, {X: 3, Y: 1.5}},
	}}}
}

type failingRenderer struct{}

func (failingRenderer) Render(*painting.Individual, guidance.Dims, guidance.Dims) (*image.RGBA, error) {
	return nil, errors.New("device lost")
}

func TestScoreImagePerfectMatchIsZero(t *testing.T) {
	f := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
	e := NewEvaluator(render.NewCPU(), f)

	score, err := e.ScoreImage(filled(4, 4, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	require.NoError(t, err)
	assert.InDelta(t, 0, score, 1e-9)
}

func TestScoreImagePenalisesUncoveredCanvas(t *testing.T) {
	f := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
	e := NewEvaluator(render.NewCPU(), f)

	empty, err := e.ScoreImage(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Greater(t, empty, 16*float64(DefaultAlphaWeight))

	light, err := NewEvaluator(render.NewCPU(), f, WithAlphaWeight(100)).
		ScoreImage(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.InDelta(t, empty-light, 16*400.0, 1e-6)
}

func TestWithAlphaWeightIsApplied(t *testing.T) {
	f := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
	canvas := image.NewRGBA(image.Rect(0, 0, 4, 4))

	base, err := NewEvaluator(render.NewCPU(), f, WithAlphaWeight(0)).ScoreImage(canvas)
	require.NoError(t, err)
	weighted, err := NewEvaluator(render.NewCPU(), f, WithAlphaWeight(DefaultAlphaWeight)).ScoreImage(canvas)
	require.NoError(t, err)
	assert.InDelta(t, 16*float64(DefaultAlphaWeight), weighted-base, 1e-6)
}

func TestScoreImageWeightsByImportance(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 4, 4))

	none := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 0)
	score, err := NewEvaluator(render.NewCPU(), none).ScoreImage(canvas)
	require.NoError(t, err)
	assert.Zero(t, score)

	full, err := NewEvaluator(render.NewCPU(), guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)).ScoreImage(canvas)
	require.NoError(t, err)
	half, err := NewEvaluator(render.NewCPU(), guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 0.5)).ScoreImage(canvas)
	require.NoError(t, err)
	assert.InDelta(t, full/2, half, 1e-6)
}

func TestScoreImageSizeMismatch(t *testing.T) {
	e := NewEvaluator(render.NewCPU(), guidance.Gradient(4, 4))
	_, err := e.ScoreImage(image.NewRGBA(image.Rect(0, 0, 5, 4)))
	assert.True(t, perrors.Is(err, perrors.ErrInputMismatch))
}

func TestScoreImageNonFinite(t *testing.T) {
	f := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
	e := NewEvaluator(render.NewCPU(), f, WithAlphaWeight(math.Inf(1)))
	_, err := e.ScoreImage(filled(4, 4, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	assert.True(t, perrors.Is(err, perrors.ErrNumericInstability))
}

func TestScoreRendersIndividual(t *testing.T) {
	f := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
	e := NewEvaluator(render.NewCPU(), f)

	covered, err := e.Score(cover(gray))
	require.NoError(t, err)
	blank, err := e.Score(&painting.Individual{})
	require.NoError(t, err)

	assert.Less(t, covered, 1.0)
	assert.Greater(t, blank, covered)
	assert.Equal(t, int64(2), e.Evaluations())
}

func TestScoreLargeCanvasSpansTasks(t *testing.T) {
	f := guidance.Uniform(8, 40, gray, r2.Vec{X: 1}, 1)
	e := NewEvaluator(render.NewCPU(), f, WithWorkers(3))

	score, err := e.ScoreImage(image.NewRGBA(image.Rect(0, 0, 8, 40)))
	require.NoError(t, err)

	perPixel, err := NewEvaluator(render.NewCPU(), guidance.Uniform(1, 1, gray, r2.Vec{X: 1}, 1)).
		ScoreImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.InDelta(t, perPixel*320, score, 1e-6)
}

func TestScoreAllIsIndexAligned(t *testing.T) {
	f := guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
	e := NewEvaluator(render.NewCPU(), f, WithWorkers(2))

	inds := []*painting.Individual{{}, cover(gray), {}, cover(colorful.Color{R: 1})}
	scores, err := e.ScoreAll(context.Background(), inds)
	require.NoError(t, err)
	require.Len(t, scores, 4)

	assert.Equal(t, scores[0], scores[2])
	assert.Less(t, scores[1], scores[3])
	assert.Less(t, scores[3], scores[0])
}

func TestScoreAllSurfacesRendererFailure(t *testing.T) {
	e := NewEvaluator(failingRenderer{}, guidance.Gradient(4, 4))
	_, err := e.ScoreAll(context.Background(), []*painting.Individual{{}, {}})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRendererFailure))
	assert.Contains(t, err.Error(), "device lost")
}

func TestScoreAllHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEvaluator(render.NewCPU(), guidance.Gradient(4, 4))
	_, err := e.ScoreAll(ctx, []*painting.Individual{{}})
	assert.ErrorIs(t, err, context.Canceled)
}
