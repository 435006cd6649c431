package evolution

import "slices"

// CheckpointSchedule returns the sorted generations in [1, generations] that
// are either listed in explicit or a multiple of step. A non-positive step
// contributes nothing.
func CheckpointSchedule(explicit []int, step, generations int) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(g int) {
		if g >= 1 && g <= generations && !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}

	for _, g := range explicit {
		add(g)
	}
	if step > 0 {
		for g := step; g <= generations; g += step {
			add(g)
		}
	}
	slices.Sort(out)
	return out
}
