package stroke

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/SBRGA/internal/guidance"
)

// Params are the distribution constants of the synthesizer. Standard
// deviations are named SD; angles are in radians.
type Params struct {
	// Thickness is interpolated between a thick, low-importance regime and a
	// thin, high-importance one with t = importance^ThicknessPow.
	ThickMean    float64
	ThickSD      float64
	ThinMean     float64
	ThinSD       float64
	ThicknessMin float64
	ThicknessPow float64

	// Target skeleton length, in units of thickness.
	LengthMean float64
	LengthSD   float64

	// Hop length, in units of thickness (the first hop is in pixels).
	HopMean float64
	HopSD   float64
	HopMin  float64

	// Per-hop heading jitter and turn limit.
	HopAngleSD  float64
	HopAngleMax float64

	// ΔE2000 threshold at which a chain stops growing.
	EndColorMean float64
	EndColorSD   float64
	EndColorMin  float64
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		ThickMean:    50,
		ThickSD:      40,
		ThinMean:     4,
		ThinSD:       2,
		ThicknessMin: 0.3,
		ThicknessPow: 1 / 1.8,

		LengthMean: 8,
		LengthSD:   4,

		HopMean: 2,
		HopSD:   0.5,
		HopMin:  0.5,

		HopAngleSD:  10 * math.Pi / 180,
		HopAngleMax: 45 * math.Pi / 180,

		EndColorMean: 5,
		EndColorSD:   10,
		EndColorMin:  2,
	}
}

// Synthesizer builds strokes against one set of guidance fields. It holds no
// mutable state; the caller supplies the random source, so one Synthesizer may
// be shared across goroutines as long as each uses its own *rand.Rand.
type Synthesizer struct {
	fields *guidance.Fields
	params Params
	scale  float64
}

// NewSynthesizer returns a Synthesizer. scale multiplies every sampled
// thickness; non-positive values are treated as 1.
func NewSynthesizer(fields *guidance.Fields, scale float64, params Params) *Synthesizer {
	if scale <= 0 {
		scale = 1
	}
	return &Synthesizer{fields: fields, params: params, scale: scale}
}

// Fields returns the guidance fields the synthesizer reads.
func (s *Synthesizer) Fields() *guidance.Fields { return s.fields }

// chain is one half of a skeleton growing away from the seed.
type chain struct {
	points []r2.Vec
	done   bool
}

// Synthesize grows one stroke from the pixel at flat index seed.
func (s *Synthesizer) Synthesize(rng *rand.Rand, seed int) Stroke {
	f := s.fields
	p := s.params

	x, y := f.Coords(seed)
	origin := r2.Vec{X: float64(x), Y: float64(y)}
	col := f.Color[seed]
	importance := f.Importance[seed]

	thickness := s.thickness(rng, importance)
	target := math.Max(thickness*s.normal(rng, p.LengthMean, p.LengthSD), thickness)

	base := guidance.SafeUnit(f.Direction[seed], r2.Vec{X: 0, Y: 1})
	heading := math.Atan2(base.Y, base.X)

	var chains [2]*chain
	var length float64
	for i, h := range [2]float64{heading, heading + math.Pi} {
		jitter := clamp(s.normal(rng, 0, p.HopAngleSD)/2, p.HopAngleMax/2)
		hop := math.Max(s.normal(rng, p.HopMean, p.HopSD), p.HopMin)
		first := r2.Add(origin, r2.Scale(hop, unitAt(h+jitter)))
		chains[i] = &chain{points: []r2.Vec{origin, first}}
		length += hop
	}

	for length < target && !(chains[0].done && chains[1].done) {
		for _, c := range chains {
			if !c.done {
				length += s.hop(rng, c, col, thickness)
			}
		}
	}

	c0, c1 := chains[0].points, chains[1].points
	skeleton := make([]r2.Vec, 0, len(c0)+len(c1)-1)
	for i := len(c1) - 1; i >= 1; i-- {
		skeleton = append(skeleton, c1[i])
	}
	skeleton = append(skeleton, c0...)

	return Stroke{
		Seed:       image.Point{X: x, Y: y},
		Color:      col,
		Thickness:  thickness,
		Skeleton:   skeleton,
		Importance: importance,
	}
}

// thickness samples the brush width for a seed of the given importance.
func (s *Synthesizer) thickness(rng *rand.Rand, importance float64) float64 {
	p := s.params
	t := math.Pow(importance, p.ThicknessPow)
	mean := lerp(p.ThickMean, p.ThinMean, t)
	sd := lerp(p.ThickSD, p.ThinSD, t)
	return math.Max(s.normal(rng, mean, sd)*s.scale, p.ThicknessMin)
}

// hop tries to extend c by one point and returns the length added. A chain
// whose next point strays too far from the stroke colour is marked done.
func (s *Synthesizer) hop(rng *rand.Rand, c *chain, col colorful.Color, thickness float64) float64 {
	p := s.params
	last := c.points[len(c.points)-1]
	prev := c.points[len(c.points)-2]

	step := r2.Sub(last, prev)
	prevAngle := math.Atan2(step.Y, step.X)

	fieldAngle := prevAngle
	if d, ok := s.fields.DirectionAt(last); ok {
		fieldAngle = math.Atan2(d.Y, d.X)
	}

	theta := axialDelta(fieldAngle - prevAngle)
	theta = clamp(theta+s.normal(rng, 0, p.HopAngleSD), p.HopAngleMax)

	hopLen := math.Max(s.normal(rng, p.HopMean, p.HopSD), p.HopMin) * thickness
	next := r2.Add(last, r2.Scale(hopLen, unitAt(prevAngle+theta)))

	target, ok := s.fields.ColorAt(next)
	if !ok {
		target = col
	}

	threshold := math.Max(s.normal(rng, p.EndColorMean, p.EndColorSD), p.EndColorMin)
	if guidance.DeltaE(col, target) > threshold {
		c.done = true
		return 0
	}

	c.points = append(c.points, next)
	return hopLen
}

func (s *Synthesizer) normal(rng *rand.Rand, mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: rng}.Rand()
}

// axialDelta wraps d into (-π, π] and then folds it into (-π/2, π/2), since
// flow directions are orientations without a sign.
func axialDelta(d float64) float64 {
	d = math.Remainder(d, 2*math.Pi)
	switch {
	case d <= -math.Pi/2:
		d += math.Pi
	case d >= math.Pi/2:
		d -= math.Pi
	}
	return d
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(v, limit))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func unitAt(angle float64) r2.Vec {
	return r2.Vec{X: math.Cos(angle), Y: math.Sin(angle)}
}
