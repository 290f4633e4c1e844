package nav

import (
	"math"

	"github.com/westphae/quaternion"
)

// StateSize is the number of components in the navigation state vector.
const StateSize = 34

// Offsets of the named blocks within a State.
const (
	Position          = 0  // ENU position, m
	Velocity          = 3  // ENU velocity, m/s
	Acceleration      = 6  // ENU acceleration, m/s²
	Orientation       = 9  // quaternion w,x,y,z rotating the tangent plane into the body frame
	RotationRate      = 13 // rotation rate, tangent-plane frame, rad/s
	Gravity           = 16 // local gravity (reaction) vector, m/s²
	MagneticField     = 19 // earth magnetic field, tangent-plane frame, µT
	GPSBias           = 22 // m
	GyroscopeBias     = 25 // body frame, rad/s
	AccelerometerBias = 28 // body frame, m/s²
	MagnetometerBias  = 31 // body frame, µT
)

// StandardGravity is the nominal magnitude of the gravity block, m/s².
const StandardGravity = 9.80665

// Vec3 is a three-vector block of the state or a three-axis sensor sample.
type Vec3 [3]float64

// State is the full navigation state in the fixed block order given by the
// offset constants.
type State [StateSize]float64

// Vec returns the three-vector block starting at offset.
func (s *State) Vec(offset int) Vec3 {
	return Vec3{s[offset], s[offset+1], s[offset+2]}
}

// SetVec overwrites the three-vector block starting at offset.
func (s *State) SetVec(offset int, v Vec3) {
	s[offset], s[offset+1], s[offset+2] = v[0], v[1], v[2]
}

// Quaternion returns the orientation block.
func (s *State) Quaternion() quaternion.Quaternion {
	return quaternion.Quaternion{
		W: s[Orientation],
		X: s[Orientation+1],
		Y: s[Orientation+2],
		Z: s[Orientation+3],
	}
}

// SetQuaternion overwrites the orientation block.
func (s *State) SetQuaternion(q quaternion.Quaternion) {
	s[Orientation], s[Orientation+1], s[Orientation+2], s[Orientation+3] = q.W, q.X, q.Y, q.Z
}

// normalize rescales the orientation to unit norm.
// A degenerate quaternion is reset to the identity.
func (s *State) normalize() {
	q := s[Orientation : Orientation+4]
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n < 1e-12 || math.IsNaN(n) || math.IsInf(n, 0) {
		q[0], q[1], q[2], q[3] = 1, 0, 0, 0
		return
	}
	q[0] /= n
	q[1] /= n
	q[2] /= n
	q[3] /= n
}

func (s *State) finite() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Position, velocity and so on are the most used blocks; these read better at
// call sites than Vec(Position).

func (s *State) Pos() Vec3 { return s.Vec(Position) }
func (s *State) Vel() Vec3 { return s.Vec(Velocity) }
func (s *State) Acc() Vec3 { return s.Vec(Acceleration) }
func (s *State) Rate() Vec3 { return s.Vec(RotationRate) }

// StateNames labels each state component, for logs and feeds.
var StateNames = [StateSize]string{
	"PE", "PN", "PU",
	"VE", "VN", "VU",
	"AE", "AN", "AU",
	"Q0", "Q1", "Q2", "Q3",
	"WE", "WN", "WU",
	"GE", "GN", "GU",
	"ME", "MN", "MU",
	"GPSBE", "GPSBN", "GPSBU",
	"GyroB1", "GyroB2", "GyroB3",
	"AccB1", "AccB2", "AccB3",
	"MagB1", "MagB2", "MagB3",
}
