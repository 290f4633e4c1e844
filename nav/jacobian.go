package nav

import (
	"github.com/skelterjohn/go.matrix"
)

// Linearizer computes the transposed Jacobian of a function of the state:
// a StateSize×m matrix whose row i holds the sensitivities of all m outputs
// to state component i.
type Linearizer interface {
	JacobianT(x *State) *matrix.DenseMatrix
}

// FiniteDifference linearizes F by central differences.
// Step holds the perturbation applied to each state component.
// Components marked in PassThrough are known to map straight through to the
// same output index and are given an exact identity row without probing.
type FiniteDifference struct {
	F           func(x *State) []float64
	Dim         int
	Step        *State
	PassThrough *[StateSize]bool
}

// JacobianT probes F on copies of x; x itself is never modified.
func (fd *FiniteDifference) JacobianT(x *State) *matrix.DenseMatrix {
	jt := matrix.Zeros(StateSize, fd.Dim)

	for i := 0; i < StateSize; i++ {
		if fd.PassThrough != nil && fd.PassThrough[i] {
			if i < fd.Dim {
				jt.Set(i, i, 1)
			}
			continue
		}

		h := fd.Step[i]
		if h == 0 {
			continue
		}

		plus, minus := *x, *x
		plus[i] += h
		minus[i] -= h
		fp, fm := fd.F(&plus), fd.F(&minus)
		for j := 0; j < fd.Dim; j++ {
			jt.Set(i, j, (fp[j]-fm[j])/(2*h))
		}
	}
	return jt
}

// randomWalk marks the blocks that the kinematic model leaves untouched.
var randomWalk = func() (pt [StateSize]bool) {
	for i := Gravity; i < StateSize; i++ {
		pt[i] = true
	}
	return
}()

// transitionLinearizer linearizes Propagate over dt.
func transitionLinearizer(dt float64, step *State) *FiniteDifference {
	return &FiniteDifference{
		F: func(x *State) []float64 {
			y := Propagate(*x, dt)
			return y[:]
		},
		Dim:         StateSize,
		Step:        step,
		PassThrough: &randomWalk,
	}
}

// measurementLinearizer linearizes the prediction of sensor s.
func measurementLinearizer(s Sensor, step *State) *FiniteDifference {
	return &FiniteDifference{
		F: func(x *State) []float64 {
			z := s.Predict(x)
			return z[:]
		},
		Dim:  3,
		Step: step,
	}
}

// GPSJacobian is the exact linearization of PredictGPS, which is linear in
// the position and GPS bias blocks.
type GPSJacobian struct{}

func (GPSJacobian) JacobianT(*State) *matrix.DenseMatrix {
	jt := matrix.Zeros(StateSize, 3)
	for i := 0; i < 3; i++ {
		jt.Set(Position+i, i, 1)
		jt.Set(GPSBias+i, i, 1)
	}
	return jt
}
