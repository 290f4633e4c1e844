package sim

import (
	"io"
	"math"
	"math/rand"
	"sort"

	"github.com/westphae/quaternion"

	"github.com/westphae/gonav/geodesy"
	"github.com/westphae/gonav/nav"
)

// SituationSim defines a scenario by piecewise-linear interpolation of the
// velocity and attitude between knots. Position integrates the velocity from
// the origin at the first knot.
type SituationSim struct {
	Origin geodesy.LLA
	T0     int64 // ns at the first knot

	t               []float64 // s, relative to T0
	ve, vn, vu      []float64 // ENU velocity, m/s
	phi, theta, psi []float64 // roll, pitch, heading, rad

	Field             nav.Vec3 // earth magnetic field, µT
	GPSBias           nav.Vec3
	GyroscopeBias     nav.Vec3
	AccelerometerBias nav.Vec3
	MagnetometerBias  nav.Vec3

	pe, pn, pu []float64 // position at the knots
}

// NewSituationSim builds a scenario from knot times (s) and the velocity and
// attitude at each knot.
func NewSituationSim(origin geodesy.LLA, t, ve, vn, vu, phi, theta, psi []float64) *SituationSim {
	s := &SituationSim{
		Origin: origin,
		t:      t, ve: ve, vn: vn, vu: vu,
		phi: phi, theta: theta, psi: psi,
		Field: nav.Vec3{0, 20, -40},
	}
	s.integrate()
	return s
}

func (s *SituationSim) integrate() {
	n := len(s.t)
	s.pe, s.pn, s.pu = make([]float64, n), make([]float64, n), make([]float64, n)
	for k := 1; k < n; k++ {
		ddt := s.t[k] - s.t[k-1]
		s.pe[k] = s.pe[k-1] + 0.5*(s.ve[k-1]+s.ve[k])*ddt
		s.pn[k] = s.pn[k-1] + 0.5*(s.vn[k-1]+s.vn[k])*ddt
		s.pu[k] = s.pu[k-1] + 0.5*(s.vu[k-1]+s.vu[k])*ddt
	}
}

// BeginTime and EndTime bound the scenario, ns.
func (s *SituationSim) BeginTime() int64 {
	return s.T0
}

func (s *SituationSim) EndTime() int64 {
	return s.T0 + int64(s.t[len(s.t)-1]*1e9+0.5)
}

// segment returns the knot index starting the segment holding t and the
// time into it.
func (s *SituationSim) segment(t float64) (ix int, tau float64) {
	if t > s.t[0] {
		ix = sort.SearchFloat64s(s.t, t) - 1
	}
	if ix > len(s.t)-2 {
		ix = len(s.t) - 2
	}
	return ix, t - s.t[ix]
}

func (s *SituationSim) attitude(t float64) quaternion.Quaternion {
	ix, tau := s.segment(t)
	f := tau / (s.t[ix+1] - s.t[ix])
	var x nav.State
	x.FromRollPitchHeading(
		(1-f)*s.phi[ix]+f*s.phi[ix+1],
		(1-f)*s.theta[ix]+f*s.theta[ix+1],
		(1-f)*s.psi[ix]+f*s.psi[ix+1])
	return x.Quaternion()
}

// rotationRate differentiates the attitude numerically: over a short dd the
// orientation advances by dq = q(t+dd) ⊗ q̄(t), a rotation by |w|·dd.
func (s *SituationSim) rotationRate(t float64) nav.Vec3 {
	const dd = 1e-4
	t0, t1 := t, t+dd
	if t1 > s.t[len(s.t)-1] {
		t0, t1 = t-dd, t
	}
	dq := quaternion.Prod(s.attitude(t1), s.attitude(t0).Conj())
	if dq.W < 0 {
		dq = dq.Neg()
	}
	sinHalf := math.Sqrt(dq.X*dq.X + dq.Y*dq.Y + dq.Z*dq.Z)
	if sinHalf < 1e-15 {
		return nav.Vec3{}
	}
	k := 2 * math.Atan2(sinHalf, dq.W) / sinHalf / dd
	return nav.Vec3{k * dq.X, k * dq.Y, k * dq.Z}
}

// Truth returns the true state at tns (ns), with position in the tangent
// plane at Origin.
func (s *SituationSim) Truth(tns int64) (x nav.State, err error) {
	t := float64(tns-s.T0) * 1e-9
	if t < s.t[0]-1e-9 || t > s.t[len(s.t)-1]+1e-9 {
		return x, ErrOutsideScenario
	}
	ix, tau := s.segment(t)
	ddt := s.t[ix+1] - s.t[ix]

	v0 := nav.Vec3{s.ve[ix], s.vn[ix], s.vu[ix]}
	v1 := nav.Vec3{s.ve[ix+1], s.vn[ix+1], s.vu[ix+1]}
	p0 := nav.Vec3{s.pe[ix], s.pn[ix], s.pu[ix]}
	for i := 0; i < 3; i++ {
		a := (v1[i] - v0[i]) / ddt
		x[nav.Acceleration+i] = a
		x[nav.Velocity+i] = v0[i] + a*tau
		x[nav.Position+i] = p0[i] + v0[i]*tau + 0.5*a*tau*tau
	}

	x.SetQuaternion(s.attitude(t))
	x.SetVec(nav.RotationRate, s.rotationRate(t))
	x.SetVec(nav.Gravity, nav.Vec3{0, 0, nav.StandardGravity})
	x.SetVec(nav.MagneticField, s.Field)
	x.SetVec(nav.GPSBias, s.GPSBias)
	x.SetVec(nav.GyroscopeBias, s.GyroscopeBias)
	x.SetVec(nav.AccelerometerBias, s.AccelerometerBias)
	x.SetVec(nav.MagnetometerBias, s.MagnetometerBias)
	return x, nil
}

// InitialConfig returns cfg with its initial state set to the truth at the
// start of the scenario.
func (s *SituationSim) InitialConfig(cfg nav.Config) nav.Config {
	x, _ := s.Truth(s.T0)
	cfg.InitialState = append([]float64(nil), x[:]...)
	return cfg
}

// Noise holds the standard deviation of the noise added to each sensor:
// GPS in m, accelerometer in m/s², gyroscope in rad/s, magnetometer in µT.
type Noise struct {
	GPS, Accelerometer, Gyroscope, Magnetometer float64
}

// Sampler generates noisy measurements from a SituationSim. Each IMU tick
// yields an accelerometer, gyroscope and magnetometer sample; GPS fixes come
// every GPSPeriod, starting at the first tick.
type Sampler struct {
	sit       *SituationSim
	noise     Noise
	imuPeriod int64
	gpsPeriod int64
	rand      *rand.Rand
	frame     *geodesy.Frame

	t       int64
	nextGPS int64
	queue   []nav.Measurement
}

// Measurements returns a Source sampling s with the given periods, ns.
func (s *SituationSim) Measurements(noise Noise, imuPeriod, gpsPeriod int64, seed int64) *Sampler {
	return &Sampler{
		sit:       s,
		noise:     noise,
		imuPeriod: imuPeriod,
		gpsPeriod: gpsPeriod,
		rand:      rand.New(rand.NewSource(seed)),
		frame:     geodesy.NewFrame(s.Origin),
		t:         s.BeginTime(),
		nextGPS:   s.BeginTime(),
	}
}

func (g *Sampler) noisy(v nav.Vec3, sigma float64) (out [3]float32) {
	for i := range v {
		out[i] = float32(v[i] + sigma*g.rand.NormFloat64())
	}
	return
}

// Next implements Source.
func (g *Sampler) Next() (nav.Measurement, error) {
	for len(g.queue) == 0 {
		if g.t > g.sit.EndTime() {
			return nav.Measurement{}, io.EOF
		}
		x, err := g.sit.Truth(g.t)
		if err != nil {
			return nav.Measurement{}, err
		}

		if g.t >= g.nextGPS {
			g.nextGPS += g.gpsPeriod
			z := nav.PredictGPS(&x)
			for i := range z {
				z[i] += g.noise.GPS * g.rand.NormFloat64()
			}
			lla := g.frame.ToGeodetic(geodesy.Vec3(z))
			g.queue = append(g.queue, nav.Measurement{Sensor: nav.GPS, T: g.t,
				Lon: lla.Lon, Lat: lla.Lat, Alt: lla.Alt, HorizontalError: float32(g.noise.GPS)})
		}
		g.queue = append(g.queue,
			nav.Measurement{Sensor: nav.Accelerometer, T: g.t, Value: g.noisy(nav.PredictAccelerometer(&x), g.noise.Accelerometer)},
			nav.Measurement{Sensor: nav.Gyroscope, T: g.t, Value: g.noisy(nav.PredictGyroscope(&x), g.noise.Gyroscope)},
			nav.Measurement{Sensor: nav.Magnetometer, T: g.t, Value: g.noisy(nav.PredictMagnetometer(&x), g.noise.Magnetometer)},
		)
		g.t += g.imuPeriod
	}

	m := g.queue[0]
	g.queue = g.queue[1:]
	return m, nil
}

// Scenarios

const pi = math.Pi

var home = geodesy.LLA{Lon: -122.3893, Lat: 37.6188, Alt: 4}

// Static is a device lying level and still, pointing north.
func Static() *SituationSim {
	return NewSituationSim(home,
		[]float64{0, 60},
		[]float64{0, 0}, []float64{0, 0}, []float64{0, 0},
		[]float64{0, 0}, []float64{0, 0}, []float64{0, 0})
}

// Walk is a pedestrian heading northeast at a steady 1.4 m/s, then turning
// to the east.
func Walk() *SituationSim {
	c := 1.4 / math.Sqrt2
	return NewSituationSim(home,
		[]float64{0, 5, 10, 40, 45, 80},
		[]float64{0, 0, c, c, 1.4, 1.4},
		[]float64{0, 0, c, c, 0, 0},
		[]float64{0, 0, 0, 0, 0, 0},
		[]float64{0, 0, 0, 0, 0, 0},
		[]float64{0, 0, 0, 0, 0, 0},
		[]float64{pi / 4, pi / 4, pi / 4, pi / 4, pi / 2, pi / 2})
}

// Turn is a vehicle driving a full circle at 10 m/s in 60 s, banked slightly.
func Turn() *SituationSim {
	const n = 13
	var t, ve, vn, vu, phi, theta, psi [n]float64
	for k := 0; k < n; k++ {
		t[k] = 5 * float64(k)
		psi[k] = 2 * pi * float64(k) / (n - 1)
		ve[k], vn[k] = 10*math.Sin(psi[k]), 10*math.Cos(psi[k])
		phi[k] = 0.05
	}
	phi[0], phi[n-1] = 0, 0
	return NewSituationSim(home, t[:], ve[:], vn[:], vu[:], phi[:], theta[:], psi[:])
}

// Scenario returns the named built-in scenario.
func Scenario(name string) (*SituationSim, bool) {
	switch name {
	case "static":
		return Static(), true
	case "walk":
		return Walk(), true
	case "turn":
		return Turn(), true
	}
	return nil, false
}
