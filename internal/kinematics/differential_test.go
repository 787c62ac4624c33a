package kinematics

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestForwardBackwardRoundTrip(t *testing.T) {
	d := NewDifferential(0.05, 0.3)
	speed, omega := float32(0.4), float32(0.7)
	left, right := d.Backward(speed, omega)
	gotSpeed, gotOmega := d.Forward(left, right)
	assert.InDelta(t, speed, gotSpeed, 1e-4)
	assert.InDelta(t, omega, gotOmega, 1e-4)
}

func TestIntegrateStraightLine(t *testing.T) {
	got := Integrate(1.0, 0, 0.04)
	assert.InDelta(t, 0.04, got.S, 1e-6)
	assert.Equal(t, float32(0), got.A)
	assert.InDelta(t, 0.04, got.Pose.X, 1e-6)
	assert.InDelta(t, 0, got.Pose.Y, 1e-6)
}

func TestIntegrateQuarterTurnUnitRadius(t *testing.T) {
	// speed == omega gives a unit turning radius; dt = pi/2 sweeps a
	// quarter circle, ending at (r, r) = (1, 1).
	got := Integrate(1.0, 1.0, math32.Pi/2)
	assert.InDelta(t, float64(math32.Pi/2), float64(got.A), 1e-4)
	assert.InDelta(t, 1, got.Pose.X, 1e-3)
	assert.InDelta(t, 1, got.Pose.Y, 1e-3)
}

func TestIntegrateMatchesArcNotSmallAngleApprox(t *testing.T) {
	// A half-turn (dtheta = pi) at unit radius must end up displaced by
	// the full diameter on Y, not the straight-line chord a small-angle
	// approximation would give.
	got := Integrate(1.0, 1.0, math32.Pi)
	assert.InDelta(t, 0, got.Pose.X, 1e-3)
	assert.InDelta(t, 2, got.Pose.Y, 1e-3)
}
