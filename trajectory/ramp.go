package trajectory

// ramp bounds the per-tick change of a consign. Each manager owns its own
// ramp so concurrent trajectories never share slew history.
type ramp struct {
	prev float64
	step float64
}

// next moves the output one bounded step toward target and returns it.
// |next(x) - previous()| never exceeds step.
func (r *ramp) next(target float64) float64 {
	diff := target - r.prev
	switch {
	case diff > r.step:
		r.prev += r.step
	case diff < -r.step:
		r.prev -= r.step
	default:
		r.prev = target
	}
	return r.prev
}

func (r *ramp) previous() float64 {
	return r.prev
}

func (r *ramp) reset() {
	r.prev = 0
}
