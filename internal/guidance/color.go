package guidance

import "github.com/lucasb-eyer/go-colorful"

// DeltaE returns the CIEDE2000 colour difference on the conventional 0-100
// lightness scale. go-colorful works with L in [0,1], hence the factor 100.
func DeltaE(a, b colorful.Color) float64 {
	return 100 * a.DistanceCIEDE2000(b)
}
