package evolution

// Stagnation counts down while the best Individual stays unchanged.
//
// Each check with an unchanged top decrements the countdown. When it drops
// below zero a remutation is due and the countdown resets to the recovery
// value. Progress leaves the countdown untouched.
type Stagnation struct {
	remaining int
	recovery  int
}

// NewStagnation returns a countdown starting at limit.
func NewStagnation(limit, recovery int) *Stagnation {
	return &Stagnation{remaining: limit, recovery: recovery}
}

// Check records one generation and reports whether a remutation is due.
func (s *Stagnation) Check(unchanged bool) bool {
	if !unchanged {
		return false
	}
	s.remaining--
	if s.remaining < 0 {
		s.remaining = s.recovery
		return true
	}
	return false
}

// Remaining returns the current countdown value.
func (s *Stagnation) Remaining() int { return s.remaining }
