package nav

import (
	"math"
	"testing"

	"github.com/skelterjohn/go.matrix"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func defaultStep() *State {
	var s State
	copy(s[:], DefaultConfig().Perturbation)
	return &s
}

// checkAgainstGonum compares a transposed Jacobian with gonum's central
// difference Jacobian of f at x.
func checkAgainstGonum(t *testing.T, name string, jt *matrix.DenseMatrix, f func(x *State) []float64, x State, tol float64) {
	m := jt.Cols()
	ref := mat.NewDense(m, StateSize, nil)
	fd.Jacobian(ref, func(y, in []float64) {
		var s State
		copy(s[:], in)
		copy(y, f(&s))
	}, x[:], &fd.JacobianSettings{Formula: fd.Central, Step: 1e-6})

	for i := 0; i < StateSize; i++ {
		for j := 0; j < m; j++ {
			if d := jt.Get(i, j) - ref.At(j, i); notSmall(d, tol*math.Max(1, math.Abs(ref.At(j, i)))) {
				t.Errorf("%s: d%d/dx%d = %g, gonum %g", name, j, i, jt.Get(i, j), ref.At(j, i))
			}
		}
	}
}

func TestGPSJacobianMatchesFiniteDifference(t *testing.T) {
	x := createRandomState()
	numeric := measurementLinearizer(GPS, defaultStep()).JacobianT(&x)
	exact := GPSJacobian{}.JacobianT(&x)

	for i := 0; i < StateSize; i++ {
		for j := 0; j < 3; j++ {
			if notSmall(numeric.Get(i, j)-exact.Get(i, j), 1e-6) {
				t.Errorf("GPS d%d/dx%d: finite difference %g, exact %g", j, i, numeric.Get(i, j), exact.Get(i, j))
			}
		}
	}
}

func TestMeasurementJacobians(t *testing.T) {
	for k := 0; k < 5; k++ {
		x := createRandomState()
		for _, s := range Sensors() {
			s := s
			jt := measurementLinearizer(s, defaultStep()).JacobianT(&x)
			if jt.Rows() != StateSize || jt.Cols() != 3 {
				t.Fatalf("%s Jacobian is %dx%d", s, jt.Rows(), jt.Cols())
			}
			checkAgainstGonum(t, s.String(), jt, func(x *State) []float64 {
				z := s.Predict(x)
				return z[:]
			}, x, 1e-5)
		}
	}
}

func TestTransitionJacobian(t *testing.T) {
	x := createRandomState()
	dt := 0.05
	lin := transitionLinearizer(dt, defaultStep())
	jt := lin.JacobianT(&x)

	for i := 0; i < 3; i++ {
		if notSmall(jt.Get(Velocity+i, Position+i)-dt, 1e-6) {
			t.Errorf("dpos/dvel = %g", jt.Get(Velocity+i, Position+i))
		}
		if notSmall(jt.Get(Acceleration+i, Position+i)-0.5*dt*dt, 1e-6) {
			t.Errorf("dpos/dacc = %g", jt.Get(Acceleration+i, Position+i))
		}
		if notSmall(jt.Get(Acceleration+i, Velocity+i)-dt, 1e-6) {
			t.Errorf("dvel/dacc = %g", jt.Get(Acceleration+i, Velocity+i))
		}
	}
	for i := Gravity; i < StateSize; i++ {
		for j := 0; j < StateSize; j++ {
			exp := 0.0
			if i == j {
				exp = 1
			}
			if jt.Get(i, j) != exp {
				t.Errorf("random walk row %d column %d = %g", i, j, jt.Get(i, j))
			}
		}
	}

	checkAgainstGonum(t, "transition", jt, func(x *State) []float64 {
		y := Propagate(*x, dt)
		return y[:]
	}, x, 1e-5)
}

func TestJacobianDoesNotModifyState(t *testing.T) {
	x := createRandomState()
	orig := x
	transitionLinearizer(0.1, defaultStep()).JacobianT(&x)
	for _, s := range Sensors() {
		measurementLinearizer(s, defaultStep()).JacobianT(&x)
	}
	if x != orig {
		t.Errorf("linearization modified its input state")
	}
}
