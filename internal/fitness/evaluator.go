// Package fitness scores rendered Individuals against the guidance fields.
// Scores are losses: lower is better.
package fitness

import (
	"context"
	"image"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
)

// DefaultAlphaWeight scales the squared alpha deficiency of a pixel. It is
// large relative to ΔE so uncovered canvas dominates the loss.
const DefaultAlphaWeight = 500

// rowsPerTask is the number of canvas rows summed by one pixel task.
const rowsPerTask = 16

// Evaluator computes the importance-weighted loss of an Individual.
type Evaluator struct {
	renderer    render.Renderer
	fields      *guidance.Fields
	alphaWeight float64
	workers     int
	evaluations atomic.Int64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithAlphaWeight sets the alpha-deficiency weight. Callers validate the
// value; the evaluator uses it as given.
func WithAlphaWeight(w float64) Option {
	return func(e *Evaluator) {
		e.alphaWeight = w
	}
}

// WithWorkers bounds the goroutines used per fan-out. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEvaluator returns an Evaluator rendering with r at the size of fields.
func NewEvaluator(r render.Renderer, fields *guidance.Fields, opts ...Option) *Evaluator {
	e := &Evaluator{
		renderer:    r,
		fields:      fields,
		alphaWeight: DefaultAlphaWeight,
		workers:     runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluations returns the number of Individuals scored so far.
func (e *Evaluator) Evaluations() int64 {
	return e.evaluations.Load()
}

// Score renders ind and returns its loss.
func (e *Evaluator) Score(ind *painting.Individual) (float64, error) {
	img, err := e.renderer.Render(ind, e.fields.Dims, e.fields.Dims)
	if err != nil {
		return 0, perrors.Wrap(err, perrors.KindRendererFailure, "rendering individual").
			WithOperation("score").
			WithComponent("fitness")
	}
	defer render.Release(e.renderer, img)

	score, err := e.ScoreImage(img)
	if err != nil {
		return 0, err
	}
	e.evaluations.Add(1)
	return score, nil
}

// ScoreImage returns the loss of an already rendered canvas, which must match
// the guidance size. Canvas pixels are premultiplied, so partially covered
// pixels are compared as if composited over black.
func (e *Evaluator) ScoreImage(img *image.RGBA) (float64, error) {
	f := e.fields
	if img.Bounds().Size() != image.Pt(f.Width, f.Height) {
		return 0, perrors.Errorf(perrors.KindInputMismatch, "canvas %v does not match guidance %dx%d",
			img.Bounds().Size(), f.Width, f.Height).
			WithOperation("score").
			WithComponent("fitness")
	}

	tasks := (f.Height + rowsPerTask - 1) / rowsPerTask
	partial := make([]float64, tasks)

	p := pool.New().WithMaxGoroutines(e.workers)
	for t := 0; t < tasks; t++ {
		p.Go(func() {
			y0 := t * rowsPerTask
			y1 := min(y0+rowsPerTask, f.Height)
			partial[t] = e.sumRows(img, y0, y1)
		})
	}
	p.Wait()

	score := floats.Sum(partial)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, perrors.Errorf(perrors.KindNumericInstability, "score is %v", score).
			WithOperation("score").
			WithComponent("fitness")
	}
	return score, nil
}

func (e *Evaluator) sumRows(img *image.RGBA, y0, y1 int) float64 {
	f := e.fields
	b := img.Bounds()
	var sum float64
	for y := y0; y < y1; y++ {
		for x := 0; x < f.Width; x++ {
			i := f.Index(x, y)
			w := f.Importance[i]
			if w == 0 {
				continue
			}
			o := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			px := img.Pix[o : o+4 : o+4]
			got := colorful.Color{
				R: float64(px[0]) / 255,
				G: float64(px[1]) / 255,
				B: float64(px[2]) / 255,
			}
			a := float64(px[3]) / 255
			loss := guidance.DeltaE(got, f.Color[i]) + (a-1)*(a-1)*e.alphaWeight
			sum += loss * w
		}
	}
	return sum
}

// ScoreAll scores every Individual in parallel. The returned slice is
// index-aligned with inds. The first failure cancels the remaining work.
func (e *Evaluator) ScoreAll(ctx context.Context, inds []*painting.Individual) ([]float64, error) {
	scores := make([]float64, len(inds))
	p := pool.New().
		WithMaxGoroutines(e.workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, ind := range inds {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := e.Score(ind)
			if err != nil {
				return perrors.Wrapf(err, perrors.KindOf(err), "individual %d", i)
			}
			scores[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
