package goalseek

// Convergence parameters. Fixed; not exposed as configuration.
const (
	ConvergenceWindow    = 3
	ConvergenceTolerance = 2.0
)

// IsConverged reports whether the last ConvergenceWindow scored attempts lie
// within ConvergenceTolerance of each other. NoScore entries are ignored and
// count toward neither the window nor the spread.
func IsConverged(scores []Score) bool {
	_, ok := convergedScore(scores)
	return ok
}

// convergedScore returns the most recent scored value when the window has
// converged.
func convergedScore(scores []Score) (Score, bool) {
	recent := make([]float64, 0, ConvergenceWindow)
	for i := len(scores) - 1; i >= 0 && len(recent) < ConvergenceWindow; i-- {
		if v, ok := scores[i].Value(); ok {
			recent = append(recent, v)
		}
	}
	if len(recent) < ConvergenceWindow {
		return NoScore, false
	}

	lo, hi := recent[0], recent[0]
	for _, v := range recent[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi-lo > ConvergenceTolerance {
		return NoScore, false
	}
	return Scored(recent[0]), true
}
