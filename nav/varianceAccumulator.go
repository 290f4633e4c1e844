package nav

// varianceAccumulator keeps an exponentially weighted mean and variance of
// a stream of observations with decay constant decay. The first observation
// seeds the mean.
type varianceAccumulator struct {
	decay   float64
	n, m, v float64
}

func newVarianceAccumulator(decay float64) *varianceAccumulator {
	return &varianceAccumulator{decay: decay}
}

// add folds obs into the estimates and returns the effective number of
// observations, the mean and the variance.
func (a *varianceAccumulator) add(obs float64) (n, m, v float64) {
	if a.n == 0 {
		a.n, a.m = 1, obs
		return a.n, a.m, a.v
	}
	d := obs - a.m
	dm := (1 - a.decay) * d

	a.n = 1 + a.decay*a.n
	a.m += dm
	a.v = a.decay * (a.v + dm*d)
	return a.n, a.m, a.v
}

// InnovationStats describes the recent innovations of one sensor.
// NIS is the normalized innovation squared yᵗS⁻¹y, which for a consistent
// filter averages the measurement dimension, 3.
type InnovationStats struct {
	Updates  int
	Rejected int
	N        float64 // effective number of observations in the averages
	Mean     Vec3    // mean innovation per axis
	Variance Vec3    // innovation variance per axis
	NIS      float64 // latest
	MeanNIS  float64
}

type innovationTracker struct {
	stats InnovationStats
	axes  [3]*varianceAccumulator
	nis   *varianceAccumulator
}

func newInnovationTracker(decay float64) *innovationTracker {
	t := &innovationTracker{nis: newVarianceAccumulator(decay)}
	for i := range t.axes {
		t.axes[i] = newVarianceAccumulator(decay)
	}
	return t
}

func (t *innovationTracker) add(y Vec3, nis float64) {
	t.stats.Updates++
	for i, a := range t.axes {
		t.stats.N, t.stats.Mean[i], t.stats.Variance[i] = a.add(y[i])
	}
	t.stats.NIS = nis
	_, t.stats.MeanNIS, _ = t.nis.add(nis)
}

func (t *innovationTracker) reject() {
	t.stats.Rejected++
}
