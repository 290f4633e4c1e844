package nav

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Config holds every tunable of a filter instance. Vectors are indexed in
// state order; variances and per-second noise densities are diagonals.
type Config struct {
	InitialState      []float64 `json:"initial_state"`      // x0 with position relative to the origin
	InitialCovariance []float64 `json:"initial_covariance"` // diag(P0)
	ProcessNoise      []float64 `json:"process_noise"`      // diag(Q), per second
	Perturbation      []float64 `json:"perturbation"`       // finite-difference step per component

	GPSNoise           [][]float64 `json:"gps_noise"`           // R_gps, m²
	AccelerometerNoise [][]float64 `json:"accelerometer_noise"` // R_acc, (m/s²)²
	GyroscopeNoise     [][]float64 `json:"gyroscope_noise"`     // R_gyro, (rad/s)²
	MagnetometerNoise  [][]float64 `json:"magnetometer_noise"`  // R_mag, µT²

	// MaxCondition bounds the 2-norm condition number of an innovation
	// covariance before the update is refused.
	MaxCondition float64 `json:"max_condition"`
	// UseReportedAccuracy replaces the horizontal GPS variances with the
	// square of each fix's reported horizontal error.
	UseReportedAccuracy bool `json:"use_reported_accuracy"`

	InnovationDecay  float64 `json:"innovation_decay"`   // decay constant of the innovation statistics
	MaxPositionSigma float64 `json:"max_position_sigma"` // m, for Valid
	MaxAttitudeSigma float64 `json:"max_attitude_sigma"` // rad, for Valid
}

// blockFill returns a state-ordered vector with every block set to the
// value given for it.
func blockFill(pos, vel, acc, quat, rate, grav, mag, gpsBias, gyroBias, accBias, magBias float64) []float64 {
	v := make([]float64, StateSize)
	fill := func(off, n int, x float64) {
		for i := off; i < off+n; i++ {
			v[i] = x
		}
	}
	fill(Position, 3, pos)
	fill(Velocity, 3, vel)
	fill(Acceleration, 3, acc)
	fill(Orientation, 4, quat)
	fill(RotationRate, 3, rate)
	fill(Gravity, 3, grav)
	fill(MagneticField, 3, mag)
	fill(GPSBias, 3, gpsBias)
	fill(GyroscopeBias, 3, gyroBias)
	fill(AccelerometerBias, 3, accBias)
	fill(MagnetometerBias, 3, magBias)
	return v
}

func diag3(v float64) [][]float64 {
	return [][]float64{{v, 0, 0}, {0, v, 0}, {0, 0, v}}
}

// DefaultConfig returns a configuration for a handheld device: level and
// at rest at the origin, with loose priors on everything else.
func DefaultConfig() Config {
	x0 := make([]float64, StateSize)
	x0[Orientation] = 1
	x0[Gravity+2] = StandardGravity

	sq := func(v []float64) []float64 {
		for i := range v {
			v[i] *= v[i]
		}
		return v
	}

	return Config{
		InitialState:      x0,
		InitialCovariance: sq(blockFill(10, 1, 1, 0.1, 0.1, 0.1, 50, 1, 0.01, 0.1, 5)),
		ProcessNoise:      blockFill(0, 0, 1, 0, 0.01, 0, 0, 0, 0, 0, 0),
		Perturbation:      blockFill(1e-4, 1e-5, 1e-5, 1e-6, 1e-6, 1e-5, 1e-4, 1e-4, 1e-7, 1e-6, 1e-4),

		GPSNoise:           diag3(5 * 5),
		AccelerometerNoise: diag3(0.1 * 0.1),
		GyroscopeNoise:     diag3(0.01 * 0.01),
		MagnetometerNoise:  diag3(1),

		MaxCondition:     1e12,
		InnovationDecay:  0.98,
		MaxPositionSigma: 100,
		MaxAttitudeSigma: 10 * Deg,
	}
}

func checkVector(name string, v []float64, positive bool) error {
	if len(v) != StateSize {
		return errors.Wrapf(ErrInvalidConfig, "%s has %d components, need %d", name, len(v), StateSize)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Wrapf(ErrInvalidConfig, "%s[%d] is not finite", name, i)
		}
		if x < 0 || (positive && x == 0) {
			return errors.Wrapf(ErrInvalidConfig, "%s[%d] = %g out of range", name, i, x)
		}
	}
	return nil
}

func checkNoise(name string, r [][]float64) error {
	if len(r) != 3 {
		return errors.Wrapf(ErrInvalidConfig, "%s has %d rows, need 3", name, len(r))
	}
	for i := range r {
		if len(r[i]) != 3 {
			return errors.Wrapf(ErrInvalidConfig, "%s row %d has %d columns, need 3", name, i, len(r[i]))
		}
	}
	for i := 0; i < 3; i++ {
		if !(r[i][i] >= 0) {
			return errors.Wrapf(ErrInvalidConfig, "%s variance %d = %g", name, i, r[i][i])
		}
		for j := 0; j < i; j++ {
			if r[i][j] != r[j][i] {
				return errors.Wrapf(ErrInvalidConfig, "%s not symmetric at %d,%d", name, i, j)
			}
		}
	}
	return nil
}

// Validate reports the first dimension or range error in c.
func (c *Config) Validate() error {
	if len(c.InitialState) != StateSize {
		return errors.Wrapf(ErrInvalidConfig, "initial_state has %d components, need %d", len(c.InitialState), StateSize)
	}
	var x State
	copy(x[:], c.InitialState)
	if !x.finite() {
		return errors.Wrap(ErrInvalidConfig, "initial_state is not finite")
	}
	q := x.Quaternion()
	if q.W*q.W+q.X*q.X+q.Y*q.Y+q.Z*q.Z < 1e-12 {
		return errors.Wrap(ErrInvalidConfig, "initial orientation is zero")
	}

	if err := checkVector("initial_covariance", c.InitialCovariance, false); err != nil {
		return err
	}
	if err := checkVector("process_noise", c.ProcessNoise, false); err != nil {
		return err
	}
	if err := checkVector("perturbation", c.Perturbation, true); err != nil {
		return err
	}

	for _, r := range []struct {
		name string
		r    [][]float64
	}{
		{"gps_noise", c.GPSNoise},
		{"accelerometer_noise", c.AccelerometerNoise},
		{"gyroscope_noise", c.GyroscopeNoise},
		{"magnetometer_noise", c.MagnetometerNoise},
	} {
		if err := checkNoise(r.name, r.r); err != nil {
			return err
		}
	}

	if !(c.MaxCondition > 1) {
		return errors.Wrapf(ErrInvalidConfig, "max_condition = %g, need > 1", c.MaxCondition)
	}
	if !(c.InnovationDecay > 0 && c.InnovationDecay < 1) {
		return errors.Wrapf(ErrInvalidConfig, "innovation_decay = %g, need 0 < d < 1", c.InnovationDecay)
	}
	if c.MaxPositionSigma < 0 || c.MaxAttitudeSigma < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative validity threshold")
	}
	return nil
}

// noise returns the measurement covariance configured for s.
func (c *Config) noise(s Sensor) [][]float64 {
	switch s {
	case GPS:
		return c.GPSNoise
	case Accelerometer:
		return c.AccelerometerNoise
	case Gyroscope:
		return c.GyroscopeNoise
	}
	return c.MagnetometerNoise
}

// LoadConfig reads a JSON configuration from path. Fields missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "reading nav config %s", path)
	}
	if err := json.Unmarshal(buf, &c); err != nil {
		return c, errors.Wrapf(err, "parsing nav config %s", path)
	}
	return c, c.Validate()
}

// Save writes c to path as indented JSON.
func (c *Config) Save(path string) error {
	buf, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling nav config")
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return errors.Wrapf(err, "writing nav config %s", path)
	}
	return nil
}
