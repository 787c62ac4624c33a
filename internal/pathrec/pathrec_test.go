package pathrec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/groundctl/internal/physical"
)

func TestRecorderSkipsInsignificantMoves(t *testing.T) {
	file := filepath.Join(t.TempDir(), "path")

	r, err := NewRecorder(file, physical.Pose{}, 0.05, 0.05)
	require.NoError(t, err)

	wrote, err := r.Record(physical.Pose{X: 0.01})
	require.NoError(t, err)
	assert.False(t, wrote, "move smaller than both thresholds must be dropped")

	wrote, err = r.Record(physical.Pose{X: 0.10})
	require.NoError(t, err)
	assert.True(t, wrote, "move past the distance threshold must be saved")

	require.NoError(t, r.Close())

	path, err := Load(file)
	require.NoError(t, err)
	assert.Len(t, path.Poses, 2, "anchor plus one saved pose")
	assert.Equal(t, float32(0), path.Poses[0].X)
	assert.InDelta(t, 0.10, path.Poses[1].X, 1e-5)
}

func TestLoadEmptyFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "empty")
	f, err := os.Create(file)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Load(file)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestTrackerAdvancesToEnd(t *testing.T) {
	path := Path{Poses: []physical.Pose{
		{X: 1, Y: 0},
		{X: 2, Y: 0},
		{X: 3, Y: 0},
	}}
	tracker := Tracker{
		Path:    path,
		Context: NewContext(Sector{Radius: 4, Angle: 3.14159}, 0.6),
	}

	pose := physical.Pose{}
	steps := 0
	sawRudder := false
	for steps < 100 {
		k, rudder, ok := tracker.Track(pose)
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, k, float32(0))
		assert.LessOrEqual(t, k, float32(1))
		if rudder != 0 {
			sawRudder = true
		}
		// Advance the robot a little toward the target each step so the
		// loop terminates instead of spinning forever on one point.
		pose.X += 0.5
		steps++
	}
	assert.Less(t, steps, 100, "tracker never reached the end of the path")
	_ = sawRudder
}
