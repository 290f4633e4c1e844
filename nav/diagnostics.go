package nav

import (
	"math"

	"github.com/skelterjohn/go.matrix"
	"gonum.org/v1/gonum/mat"
)

// CovarianceHealth summarizes the numerical condition of a covariance matrix.
type CovarianceHealth struct {
	Finite        bool
	Asymmetry     float64 // max |P[i][j] - P[j][i]|
	MinEigenvalue float64
	MaxEigenvalue float64
}

// PSD reports whether the covariance is positive semi-definite to within a
// tolerance relative to its largest eigenvalue.
func (h CovarianceHealth) PSD() bool {
	return h.Finite && h.MinEigenvalue >= -1e-9*math.Max(1, h.MaxEigenvalue)
}

func toDense(m *matrix.DenseMatrix) *mat.Dense {
	d := mat.NewDense(m.Rows(), m.Cols(), nil)
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			d.Set(i, j, m.Get(i, j))
		}
	}
	return d
}

func allFinite(m *matrix.DenseMatrix) bool {
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if v := m.Get(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// symmetrize replaces p by (p+pᵗ)/2 in place.
func symmetrize(p *matrix.DenseMatrix) {
	for i := 0; i < p.Rows(); i++ {
		for j := i + 1; j < p.Cols(); j++ {
			v := 0.5 * (p.Get(i, j) + p.Get(j, i))
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
	}
}

// conditionNumber returns the 2-norm condition number of a square matrix,
// +Inf when it is singular.
func conditionNumber(m *matrix.DenseMatrix) float64 {
	if !allFinite(m) {
		return math.Inf(1)
	}
	return mat.Cond(toDense(m), 2)
}

func covarianceHealth(p *matrix.DenseMatrix) (h CovarianceHealth) {
	h.Finite = allFinite(p)
	if !h.Finite {
		h.MinEigenvalue, h.MaxEigenvalue = math.NaN(), math.NaN()
		return
	}

	n := p.Rows()
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h.Asymmetry = math.Max(h.Asymmetry, math.Abs(p.Get(i, j)-p.Get(j, i)))
			data[i*n+j] = 0.5 * (p.Get(i, j) + p.Get(j, i))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(n, data), false) {
		h.MinEigenvalue, h.MaxEigenvalue = math.NaN(), math.NaN()
		return
	}
	vals := eig.Values(nil)
	h.MinEigenvalue, h.MaxEigenvalue = vals[0], vals[0]
	for _, v := range vals[1:] {
		h.MinEigenvalue = math.Min(h.MinEigenvalue, v)
		h.MaxEigenvalue = math.Max(h.MaxEigenvalue, v)
	}
	return
}
