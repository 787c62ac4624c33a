// Package physical holds the small value types shared by every
// supervisor in the runtime: the chassis setpoint, the per-tick
// odometry delta and the SE(2) pose it accumulates into.
package physical

import "github.com/chewxy/math32"

// Physical is a chassis drive setpoint: forward speed in meters per
// second and rudder (steering) angle in radians.
//
// Rudder carries a sentinel NaN meaning "released" — the chassis has
// let go of the wheels and applies no torque. Speed is meaningless in
// that state and is conventionally left at 0.
type Physical struct {
	Speed  float32
	Rudder float32
}

// Released is returned by the drive arbitrator whenever it decides the
// chassis should coast rather than hold a setpoint (emergency stop,
// certain collision-avoidance outcomes).
var Released = Physical{Speed: 0, Rudder: math32.NaN()}

// IsStatic reports whether the setpoint asks the chassis to stay put.
func (p Physical) IsStatic() bool {
	return p.Speed == 0
}

// IsReleased reports whether p is the released sentinel.
func (p Physical) IsReleased() bool {
	return math32.IsNaN(p.Rudder)
}

// Odometry is the accumulated travel and heading change produced by a
// single control step: S is arc length in meters, A is heading change
// in radians, and Pose is the resulting pose composed onto an implicit
// starting-at-origin frame (used by the trajectory predictor, which
// only cares about the relative motion, not an absolute pose).
type Odometry struct {
	S, A float32
	Pose Pose
}

// Add accumulates another step's odometry onto o, composing poses in
// the frame of o (not in world frame) — the caller reframes into world
// coordinates separately when that's needed.
func (o Odometry) Add(d Odometry) Odometry {
	return Odometry{
		S:    o.S + d.S,
		A:    o.A + d.A,
		Pose: o.Pose.Compose(d.Pose),
	}
}

// Pose is a rigid transform in the plane: position and heading.
type Pose struct {
	X, Y, Theta float32
}

// Compose returns the pose obtained by applying delta in the frame of p.
func (p Pose) Compose(delta Pose) Pose {
	sin, cos := math32.Sincos(p.Theta)
	return Pose{
		X:     p.X + delta.X*cos - delta.Y*sin,
		Y:     p.Y + delta.X*sin + delta.Y*cos,
		Theta: normalizeAngle(p.Theta + delta.Theta),
	}
}

// Transform maps a point given in p's local frame into the frame p is
// expressed in (used to turn a LIDAR range/bearing reading, already
// converted to a local x/y point, into robot-frame coordinates).
func (p Pose) Transform(x, y float32) (float32, float32) {
	sin, cos := math32.Sincos(p.Theta)
	return p.X + x*cos - y*sin, p.Y + x*sin + y*cos
}

// Distance returns the Euclidean distance between p and q's positions.
func (p Pose) Distance(q Pose) float32 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return math32.Sqrt(dx*dx + dy*dy)
}

// HeadingDelta returns the absolute, wrapped difference between p and
// q's headings, in [0, pi].
func (p Pose) HeadingDelta(q Pose) float32 {
	d := normalizeAngle(p.Theta - q.Theta)
	if d < 0 {
		d = -d
	}
	return d
}

func normalizeAngle(a float32) float32 {
	const twoPi = 2 * math32.Pi
	for a > math32.Pi {
		a -= twoPi
	}
	for a < -math32.Pi {
		a += twoPi
	}
	return a
}

// PackPhysical encodes p into a single uint64 word suitable for
// lock-free storage behind an atomic.Uint64. Unlike the pointer
// reinterpret-cast this is ported from, PackPhysical goes through
// math32.Float32bits on each field explicitly — no unsafe, no aliasing
// of Go's memory model assumptions.
func PackPhysical(p Physical) uint64 {
	hi := uint64(math32.Float32bits(p.Speed))
	lo := uint64(math32.Float32bits(p.Rudder))
	return hi<<32 | lo
}

// UnpackPhysical is the inverse of PackPhysical.
func UnpackPhysical(w uint64) Physical {
	return Physical{
		Speed:  math32.Float32frombits(uint32(w >> 32)),
		Rudder: math32.Float32frombits(uint32(w)),
	}
}
