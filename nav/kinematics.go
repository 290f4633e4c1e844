package nav

import (
	"math"

	"github.com/westphae/quaternion"
)

// smallAngle is the half-angle below which the rotation increment falls back
// to its first-order form.
const smallAngle = 1e-5

// deltaQuaternion returns the rotation accumulated over dt at the constant
// rate w: a rotation by |w|·dt about w.
func deltaQuaternion(w Vec3, dt float64) quaternion.Quaternion {
	n := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])
	theta := 0.5 * n * dt

	var alpha float64
	if math.Abs(theta) < smallAngle {
		alpha = 0.5 * dt
	} else {
		alpha = math.Sin(theta) / n
	}
	return quaternion.Quaternion{W: math.Cos(theta), X: alpha * w[0], Y: alpha * w[1], Z: alpha * w[2]}
}

// Propagate advances the state x by dt seconds under the kinematic model:
// constant acceleration for position and velocity, constant rotation rate
// for the orientation and a random walk for every other block.
func Propagate(x State, dt float64) State {
	if dt == 0 {
		return x
	}

	for i := 0; i < 3; i++ {
		v, a := x[Velocity+i], x[Acceleration+i]
		x[Position+i] += dt*v + 0.5*dt*dt*a
		x[Velocity+i] += dt * a
	}

	x.SetQuaternion(quaternion.Prod(deltaQuaternion(x.Rate(), dt), x.Quaternion()))
	x.normalize()

	return x
}

// rotate expresses the tangent-plane vector v in the body frame of the
// orientation q: q ⊗ v ⊗ q̄ / |q|².
func rotate(q quaternion.Quaternion, v Vec3) Vec3 {
	r := q.RotateVec3(quaternion.Vec3{X: v[0], Y: v[1], Z: v[2]})
	return Vec3{r.X, r.Y, r.Z}
}
