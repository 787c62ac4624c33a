// Package trajectory implements the chassis's lazy motion predictor:
// given a kinematic model, a current state and a target setpoint, it
// yields the sequence of (Δt, Δodometry) pairs the chassis would
// produce while steering from current to target.
package trajectory

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/physical"
)

// StepPeriod is the fixed control-loop period the predictor advances
// by on every Next call.
const StepPeriod = 40 * time.Millisecond

// rudderRate bounds how fast the rudder can track a new target per
// step; chosen so a full swing from -pi/2 to pi/2 takes a little over
// half a second, matching the chassis's own manual/artificial deadline
// window.
const rudderRate = 6.0 // rad/s

// Predictor is a cheaply-clonable iterator over a hypothetical drive
// from Current to Target. It holds only value fields, so Clone (a
// plain Go value copy) never aliases the supervisor's live state.
type Predictor struct {
	Model   kinematics.Differential
	Current physical.Physical
	Target  physical.Physical
	done    bool
}

// New returns a Predictor ready to iterate from current to target
// using model.
func New(model kinematics.Differential, current physical.Physical) Predictor {
	return Predictor{Model: model, Current: current, Target: current}
}

// Clone returns an independent copy; advancing the copy never affects
// the original, since Predictor carries no pointers into shared state.
func (p Predictor) Clone() Predictor {
	return p
}

// rudderEpsilon is how close the rudder must be to Target.Rudder to be
// considered converged.
const rudderEpsilon = 1e-4

// Next produces the next (Δt, Δodometry) pair. Once the rudder has
// converged to Target, Next keeps producing identical constant-motion
// steps (a cruise has no natural endpoint of its own — callers bound
// the iteration externally, e.g. the collision check's 2s look-ahead)
// except in the static case, where a converged zero-speed target means
// there is nothing left to predict and Next reports ok=false.
func (p *Predictor) Next() (time.Duration, physical.Odometry, bool) {
	if p.done {
		return 0, physical.Odometry{}, false
	}

	dt := float32(StepPeriod) / float32(time.Second)

	if p.Current.IsReleased() || p.Target.IsReleased() {
		p.done = true
		return 0, physical.Odometry{}, false
	}

	diff := p.Target.Rudder - p.Current.Rudder
	if math32.Abs(diff) < rudderEpsilon && p.Target.IsStatic() {
		p.done = true
		return 0, physical.Odometry{}, false
	}

	step := rudderRate * dt
	if math32.Abs(diff) <= step {
		p.Current.Rudder = p.Target.Rudder
	} else if diff > 0 {
		p.Current.Rudder += step
	} else {
		p.Current.Rudder -= step
	}
	p.Current.Speed = p.Target.Speed

	omega := p.Current.Speed * math32.Tan(p.Current.Rudder) / p.Model.TrackWidth
	odom := kinematics.Integrate(p.Current.Speed, omega, dt)

	return StepPeriod, odom, true
}

// Prototype is the chassis supervisor's live template: cloned and
// re-targeted on every Predict call, never advanced directly.
type Prototype struct {
	Model   kinematics.Differential
	Current physical.Physical
}

// Predict returns an independent Predictor seeded with the prototype's
// current state and the caller's desired target.
func (p Prototype) Predict(target physical.Physical) Predictor {
	pr := New(p.Model, p.Current)
	pr.Target = target
	return pr
}
