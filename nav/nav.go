// Package nav implements an extended Kalman filter fusing GPS fixes with
// accelerometer, gyroscope and magnetometer samples into an estimate of
// position, velocity, orientation and sensor biases in a local
// East-North-Up frame.
package nav

import (
	"log"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"

	"github.com/westphae/gonav/geodesy"
)

// Nav is a single filter instance. It is safe for concurrent use; every
// exported method holds the instance lock for its whole duration.
type Nav struct {
	mu sync.Mutex

	cfg     Config
	perturb State
	q       *matrix.DenseMatrix // process noise per second
	r       [numSensors]*matrix.DenseMatrix

	initialized bool
	frame       *geodesy.Frame
	t           int64 // ns
	x           State
	p           *matrix.DenseMatrix

	linearizers [numSensors]Linearizer
	innovations [numSensors]*innovationTracker
}

// New returns an uninitialized filter for cfg.
func New(cfg Config) (*Nav, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Nav{cfg: cfg, q: matrix.Diagonal(append([]float64(nil), cfg.ProcessNoise...))}
	copy(n.perturb[:], cfg.Perturbation)
	for _, s := range Sensors() {
		r := matrix.Zeros(3, 3)
		for i, row := range cfg.noise(s) {
			for j, v := range row {
				r.Set(i, j, v)
			}
		}
		n.r[s] = r
		n.linearizers[s] = measurementLinearizer(s, &n.perturb)
		n.innovations[s] = newInnovationTracker(cfg.InnovationDecay)
	}
	n.linearizers[GPS] = GPSJacobian{}
	return n, nil
}

// Config returns the configuration the filter was built with.
func (n *Nav) Config() Config {
	return n.cfg
}

// SetLinearizer replaces the linearization used for sensor s.
func (n *Nav) SetLinearizer(s Sensor, l Linearizer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.linearizers[s] = l
}

// Initialize fixes the tangent-plane origin at the given geodetic point and
// starts a fresh estimate there at time t0 (ns). Any previous estimate is
// discarded. A positive horizErr (m) sets the initial horizontal position
// variance.
func (n *Nav) Initialize(t0 int64, lon, lat, alt float64, horizErr float32) error {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsNaN(alt) ||
		math.IsInf(lon, 0) || math.IsInf(lat, 0) || math.IsInf(alt, 0) {
		return errors.Wrapf(ErrNonFinite, "origin %g, %g, %g", lon, lat, alt)
	}
	if lat < -90 || lat > 90 {
		return errors.Errorf("nav: latitude %g out of range", lat)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.frame = geodesy.NewFrame(geodesy.LLA{Lon: lon, Lat: lat, Alt: alt})
	n.t = t0
	copy(n.x[:], n.cfg.InitialState)
	n.x.normalize()
	n.p = matrix.Diagonal(append([]float64(nil), n.cfg.InitialCovariance...))
	if e := float64(horizErr); e > 0 && !math.IsInf(e, 0) {
		n.p.Set(Position, Position, e*e)
		n.p.Set(Position+1, Position+1, e*e)
	}
	for _, s := range Sensors() {
		n.innovations[s] = newInnovationTracker(n.cfg.InnovationDecay)
	}
	n.initialized = true
	return nil
}

// Initialized reports whether Initialize has been called.
func (n *Nav) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialized
}

// Origin returns the geodetic origin of the tangent plane.
func (n *Nav) Origin() (geodesy.LLA, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialized {
		return geodesy.LLA{}, ErrNotInitialized
	}
	return n.frame.Origin, nil
}

// predicted returns the state and covariance propagated to t without
// touching the committed estimate.
func (n *Nav) predicted(t int64) (State, *matrix.DenseMatrix, error) {
	if !n.initialized {
		return State{}, nil, ErrNotInitialized
	}
	if t < n.t {
		return State{}, nil, errors.Wrapf(ErrOutOfOrder, "t=%d, current %d", t, n.t)
	}
	if t == n.t {
		return n.x, n.p.Copy(), nil
	}

	dt := float64(t-n.t) * 1e-9
	ft := transitionLinearizer(dt, &n.perturb).JacobianT(&n.x)
	x := Propagate(n.x, dt)
	p := matrix.Sum(matrix.Product(ft.Transpose(), matrix.Product(n.p, ft)), matrix.Scaled(n.q, dt))
	symmetrize(p)

	if !x.finite() || !allFinite(p) {
		return State{}, nil, errors.Wrapf(ErrNonFinite, "predicting %.3f s", dt)
	}
	return x, p, nil
}

// Predict advances the committed estimate to t (ns).
// t equal to the current time is a no-op.
func (n *Nav) Predict(t int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialized && t == n.t {
		return nil
	}
	x, p, err := n.predicted(t)
	if err != nil {
		return err
	}
	n.x, n.p, n.t = x, p, t
	return nil
}

// correct fuses the reading z of sensor s taken at t, with measurement
// covariance r. The estimate is either fully updated or left as it was.
func (n *Nav) correct(t int64, s Sensor, z Vec3, r *matrix.DenseMatrix) (err error) {
	defer func() {
		if err != nil && n.initialized {
			n.innovations[s].reject()
		}
	}()

	x, p, err := n.predicted(t)
	if err != nil {
		return err
	}

	zHat := s.Predict(&x)
	ht := n.linearizers[s].JacobianT(&x)
	h := ht.Transpose()

	ss := matrix.Sum(matrix.Product(h, matrix.Product(p, ht)), r)
	if c := conditionNumber(ss); !(c <= n.cfg.MaxCondition) {
		return errors.Wrapf(ErrSingularInnovation, "%s: condition number %g", s, c)
	}
	ssInv, err := ss.Inverse()
	if err != nil {
		return errors.Wrapf(ErrSingularInnovation, "%s: %v", s, err)
	}

	kk := matrix.Product(p, matrix.Product(ht, ssInv))
	y := matrix.Zeros(3, 1)
	var innov Vec3
	for i := 0; i < 3; i++ {
		innov[i] = z[i] - zHat[i]
		y.Set(i, 0, innov[i])
	}

	dx := matrix.Product(kk, y)
	for i := 0; i < StateSize; i++ {
		x[i] += dx.Get(i, 0)
	}
	x.normalize()

	// (I-KH)P(I-KH)ᵗ + KRKᵗ, equal to (I-KH)P for the optimal gain
	ikh := matrix.Difference(matrix.Eye(StateSize), matrix.Product(kk, h))
	p = matrix.Sum(
		matrix.Product(ikh, matrix.Product(p, ikh.Transpose())),
		matrix.Product(kk, matrix.Product(r, kk.Transpose())))
	symmetrize(p)

	if !x.finite() || !allFinite(p) {
		return errors.Wrapf(ErrNonFinite, "%s update", s)
	}

	nis := matrix.Product(y.Transpose(), matrix.Product(ssInv, y)).Get(0, 0)
	n.innovations[s].add(innov, nis)

	n.x, n.p, n.t = x, p, t
	return nil
}

// UpdateGPS fuses a GPS fix taken at t (ns).
func (n *Nav) UpdateGPS(t int64, lon, lat, alt float64, horizErr float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return ErrNotInitialized
	}
	enu := n.frame.ToEnu(geodesy.LLA{Lon: lon, Lat: lat, Alt: alt})

	r := n.r[GPS]
	if e := float64(horizErr); n.cfg.UseReportedAccuracy && e > 0 && !math.IsInf(e, 0) {
		r = r.Copy()
		for i := 0; i < 2; i++ {
			for j := 0; j < 3; j++ {
				r.Set(i, j, 0)
				r.Set(j, i, 0)
			}
			r.Set(i, i, e*e)
		}
	}
	return n.correct(t, GPS, Vec3(enu), r)
}

func (n *Nav) updateSensor(s Sensor, t int64, v [3]float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.correct(t, s, Vec3{float64(v[0]), float64(v[1]), float64(v[2])}, n.r[s])
}

// UpdateAccelerometer fuses a body-frame specific force sample, m/s².
func (n *Nav) UpdateAccelerometer(t int64, v [3]float32) error {
	return n.updateSensor(Accelerometer, t, v)
}

// UpdateGyroscope fuses a body-frame rotation rate sample, rad/s.
func (n *Nav) UpdateGyroscope(t int64, v [3]float32) error {
	return n.updateSensor(Gyroscope, t, v)
}

// UpdateMagnetometer fuses a body-frame magnetic field sample, µT.
func (n *Nav) UpdateMagnetometer(t int64, v [3]float32) error {
	return n.updateSensor(Magnetometer, t, v)
}

// Apply dispatches m to the matching update.
func (n *Nav) Apply(m Measurement) error {
	switch m.Sensor {
	case GPS:
		return n.UpdateGPS(m.T, m.Lon, m.Lat, m.Alt, m.HorizontalError)
	case Accelerometer, Gyroscope, Magnetometer:
		return n.updateSensor(m.Sensor, m.T, m.Value)
	}
	return errors.Errorf("nav: unknown sensor %d", m.Sensor)
}

// GetState returns the state predicted to t (ns). The committed estimate is
// not advanced.
func (n *Nav) GetState(t int64) ([StateSize]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	x, _, err := n.predicted(t)
	return x, err
}

// Snapshot is a self-contained copy of the estimate at one instant.
type Snapshot struct {
	T          int64 // ns
	State      State
	Covariance *matrix.DenseMatrix
	Frame      *geodesy.Frame
}

// Sigma returns the standard deviation of state component i.
func (s *Snapshot) Sigma(i int) float64 {
	return math.Sqrt(math.Max(0, s.Covariance.Get(i, i)))
}

// Geodetic returns the estimated position as longitude, latitude and altitude.
func (s *Snapshot) Geodetic() geodesy.LLA {
	return s.Frame.ToGeodetic(geodesy.Vec3(s.State.Pos()))
}

// Snapshot returns the state and covariance predicted to t without
// advancing the committed estimate.
func (n *Nav) Snapshot(t int64) (Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	x, p, err := n.predicted(t)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{T: t, State: x, Covariance: p, Frame: n.frame}, nil
}

// Time returns the timestamp of the committed estimate, ns.
func (n *Nav) Time() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.t
}

// InnovationStats returns the innovation statistics accumulated for s since
// the last Initialize.
func (n *Nav) InnovationStats(s Sensor) InnovationStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.innovations[s].stats
}

// CovarianceHealth reports the condition of the committed covariance.
func (n *Nav) CovarianceHealth() (CovarianceHealth, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialized {
		return CovarianceHealth{}, ErrNotInitialized
	}
	return covarianceHealth(n.p), nil
}

// Valid applies some heuristics to decide whether the estimate can be
// trusted: a healthy covariance and position and attitude uncertainties
// within the configured limits.
func (n *Nav) Valid() bool {
	n.mu.Lock()
	if !n.initialized {
		n.mu.Unlock()
		return false
	}
	health := covarianceHealth(n.p)
	var posVar, attVar float64
	for i := 0; i < 3; i++ {
		posVar = math.Max(posVar, n.p.Get(Position+i, Position+i))
		// The vector part of a unit quaternion is about half the rotation angle.
		attVar = math.Max(attVar, 4*n.p.Get(Orientation+1+i, Orientation+1+i))
	}
	maxPos, maxAtt := n.cfg.MaxPositionSigma, n.cfg.MaxAttitudeSigma
	n.mu.Unlock()

	if !health.PSD() {
		log.Printf("Nav: covariance unhealthy: finite %t, asymmetry %g, min eigenvalue %g\n",
			health.Finite, health.Asymmetry, health.MinEigenvalue)
		return false
	}
	if posSig, attSig := math.Sqrt(posVar), math.Sqrt(attVar); posSig > maxPos || attSig > maxAtt {
		log.Printf("Nav: too uncertain: position +/- %.1f m, attitude +/- %.1f deg\n", posSig, attSig/Deg)
		return false
	}
	return true
}
