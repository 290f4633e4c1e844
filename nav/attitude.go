package nav

import "math"

// Deg converts degrees to radians.
const Deg = math.Pi / 180

// RollPitchHeading returns the attitude of the body, in radians, for a body
// frame with x to the nose, y to the left and z up. Roll is positive right
// wing down, pitch positive nose up and heading is measured clockwise from
// north in [0, 2π).
func (s *State) RollPitchHeading() (roll, pitch, heading float64) {
	r := s.Quaternion().RotMat()
	// Rows of r are the body axes expressed in East-North-Up coordinates.
	nose, left, up := r[0], r[1], r[2]

	roll = math.Atan2(left[2], up[2])
	pitch = math.Asin(math.Max(-1, math.Min(1, nose[2])))
	heading = math.Atan2(nose[0], nose[1])
	if heading < 0 {
		heading += 2 * math.Pi
	}
	return
}

// FromRollPitchHeading sets the orientation block from Tait-Bryan angles in
// radians, using the conventions of RollPitchHeading.
func (s *State) FromRollPitchHeading(roll, pitch, heading float64) {
	// Body-to-ENU is yaw about Up by (π/2 - heading), then pitch about the
	// body y axis by -pitch, then roll about the body x axis by roll.
	sy, cy := math.Sincos((math.Pi/2 - heading) / 2)
	sp, cp := math.Sincos(-pitch / 2)
	sr, cr := math.Sincos(roll / 2)

	// yaw ⊗ pitch ⊗ roll
	w := cy*cp*cr + sy*sp*sr
	x := cy*cp*sr - sy*sp*cr
	y := cy*sp*cr + sy*cp*sr
	z := sy*cp*cr - cy*sp*sr

	// The state carries the inverse rotation.
	s[Orientation], s[Orientation+1], s[Orientation+2], s[Orientation+3] = w, -x, -y, -z
}
