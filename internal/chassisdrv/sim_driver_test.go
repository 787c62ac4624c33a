package chassisdrv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/physical"
)

func TestWheelPIDConvergesTowardTarget(t *testing.T) {
	pid := newWheelPID(4, 2, 0.1, -10, 10)
	pid.target = 2

	input := float32(0)
	for i := 0; i < 200; i++ {
		out := pid.update(input, 0.04)
		input += out * 0.04
	}
	assert.InDelta(t, 2, input, 0.05)
}

func TestClampBounds(t *testing.T) {
	assert.Equal(t, float32(-10), clamp(-50, -10, 10))
	assert.Equal(t, float32(10), clamp(50, -10, 10))
	assert.Equal(t, float32(3), clamp(3, -10, 10))
}

func TestSetTargetReleasedZeroesWheelTargets(t *testing.T) {
	d := NewSimDriver(kinematics.NewDifferential(0.05, 0.3))
	require := assert.New(t)

	require.NoError(d.SetTarget(physical.Physical{Speed: 1, Rudder: 0.1}))
	require.NotZero(d.left.target)

	require.NoError(d.SetTarget(physical.Released))
	require.Zero(d.left.target)
	require.Zero(d.right.target)
}
