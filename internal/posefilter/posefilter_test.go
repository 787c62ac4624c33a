package posefilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/groundctl/internal/physical"
)

func TestFirstUpdateOfEitherSourceBecomesAnchor(t *testing.T) {
	f := New()
	t0 := time.Now()

	pose := f.Update(Relative, t0, physical.Pose{X: 1, Y: 2, Theta: 0.1})
	assert.Equal(t, physical.Pose{X: 1, Y: 2, Theta: 0.1}, pose)
}

func TestAbsoluteUpdateCorrectsDrift(t *testing.T) {
	f := New()
	t0 := time.Now()

	f.Update(Relative, t0, physical.Pose{X: 0, Y: 0, Theta: 0})
	f.Update(Relative, t0.Add(time.Second), physical.Pose{X: 1, Y: 0, Theta: 0})

	corrected := f.Update(Absolute, t0.Add(2*time.Second), physical.Pose{X: 10, Y: 10, Theta: 0})
	assert.Equal(t, float32(10), corrected.X)
	assert.Equal(t, float32(10), corrected.Y)
}

func TestOutputAlwaysReturnsAPose(t *testing.T) {
	f := New()
	pose := f.Current()
	assert.Equal(t, physical.Pose{}, pose)
}

func TestLastTimeMonotonicallyAdvances(t *testing.T) {
	f := New()
	t0 := time.Now()

	f.Update(Relative, t0.Add(time.Second), physical.Pose{})
	f.Update(Relative, t0, physical.Pose{X: 5})

	require.True(t, f.lastTime.Equal(t0.Add(time.Second)), "an out-of-order timestamp must not move lastTime backwards")
}

func TestRelativeDriftAccumulatesBetweenAbsoluteFixes(t *testing.T) {
	f := New()
	t0 := time.Now()

	f.Update(Absolute, t0, physical.Pose{X: 0, Y: 0, Theta: 0})
	f.Update(Relative, t0.Add(time.Second), physical.Pose{X: 0, Y: 0, Theta: 0})
	pose := f.Update(Relative, t0.Add(2*time.Second), physical.Pose{X: 1, Y: 0, Theta: 0})

	assert.Equal(t, float32(1), pose.X)
}
