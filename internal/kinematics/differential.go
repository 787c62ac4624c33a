// Package kinematics implements the differential-drive wheel model
// used by both the trajectory predictor and the reference chassis
// driver.
package kinematics

import (
	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/physical"
)

// Differential is a two-wheel differential-drive kinematic model.
// WheelRadius and TrackWidth are both in meters.
type Differential struct {
	WheelRadius float32
	TrackWidth  float32
}

// NewDifferential returns a Differential model for the given wheel
// radius and track width (the distance between the two wheels).
func NewDifferential(wheelRadius, trackWidth float32) Differential {
	return Differential{WheelRadius: wheelRadius, TrackWidth: trackWidth}
}

// Forward maps wheel angular rates (rad/s, left and right) to a
// chassis twist: forward speed in m/s and angular rate in rad/s.
func (d Differential) Forward(left, right float32) (speed, omega float32) {
	vl := left * d.WheelRadius
	vr := right * d.WheelRadius
	speed = (vl + vr) * 0.5
	omega = (vr - vl) / d.TrackWidth
	return speed, omega
}

// Backward maps a desired chassis twist into the wheel angular rates
// that would produce it.
func (d Differential) Backward(speed, omega float32) (left, right float32) {
	vl := speed - d.TrackWidth*omega*0.5
	vr := speed + d.TrackWidth*omega*0.5
	return vl / d.WheelRadius, vr / d.WheelRadius
}

// Integrate advances a pose by one control step of duration dt seconds
// given a chassis twist (speed m/s, omega rad/s), returning the
// resulting Odometry delta (arc length, heading change, local-frame
// pose delta).
func Integrate(speed, omega, dt float32) physical.Odometry {
	dtheta := omega * dt
	ds := speed * dt

	var dx, dy float32
	if omega == 0 {
		dx, dy = ds, 0
	} else {
		// Exact arc-chord solution rather than a small-angle
		// approximation, since dt can be as large as a single
		// control period (40ms) at high angular rates.
		r := speed / omega
		dx = r * math32.Sin(dtheta)
		dy = r * (1 - math32.Cos(dtheta))
	}

	return physical.Odometry{
		S: math32.Abs(ds),
		A: math32.Abs(dtheta),
		Pose: physical.Pose{
			X:     dx,
			Y:     dy,
			Theta: dtheta,
		},
	}
}
