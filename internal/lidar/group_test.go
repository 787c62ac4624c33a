package lidar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/internal/trajectory"
)

func newTestGroup() *Group {
	g := New(nil)
	return g
}

func straightPredictor(speed float32) trajectory.Predictor {
	model := kinematics.NewDifferential(0.05, 0.3)
	p := trajectory.New(model, physical.Physical{Speed: speed, Rudder: 0})
	p.Target = physical.Physical{Speed: speed, Rudder: 0}
	return p
}

func TestCheckNoObstaclesReturnsNoHit(t *testing.T) {
	g := newTestGroup()
	_, ok := g.Check(straightPredictor(0.5))
	assert.False(t, ok)
}

func TestCheckHeadOnObstacleDetected(t *testing.T) {
	g := newTestGroup()
	g.collectors[0].points = [][]point{{{X: 0.30, Y: 0.00}}}

	info, ok := g.Check(straightPredictor(0.5))
	require.True(t, ok)
	assert.Greater(t, info.Risk, float32(0))
	assert.Less(t, info.Risk, float32(1))
}

func TestCheckIsIdempotent(t *testing.T) {
	g := newTestGroup()
	g.collectors[0].points = [][]point{{{X: 0.30, Y: 0.00}}}

	a, okA := g.Check(straightPredictor(0.5))
	b, okB := g.Check(straightPredictor(0.5))
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}

func TestCollisionMonotoneInOutlineSize(t *testing.T) {
	// A point just outside the unscaled outline should still be hit
	// once the outline is inflated enough by accumulated travel.
	g := newTestGroup()
	g.collectors[0].points = [][]point{{{X: 0.9, Y: 0.0}}}

	_, hitFar := g.Check(straightPredictor(2.0))
	assert.True(t, hitFar, "a fast-enough predictor should accumulate enough size to reach the point")
}

func TestIndexerRetainsSlotAcrossReconnect(t *testing.T) {
	ix := newIndexer(2)

	aIdx, _, ok := ix.assign("A")
	require.True(t, ok)
	assert.Equal(t, 0, aIdx)

	// A disconnects — nothing calls release, so its slot stays
	// reserved. B, a different identifier, gets the next free slot.
	bIdx, _, ok := ix.assign("B")
	require.True(t, ok)
	assert.Equal(t, 1, bIdx)

	// A reconnects: it gets its original slot back, unchanged.
	aIdx2, changed, ok := ix.assign("A")
	require.True(t, ok)
	assert.False(t, changed)
	assert.Equal(t, 0, aIdx2)
}

func TestEncodeFrameNilWhenNoIndexOccupied(t *testing.T) {
	g := newTestGroup()
	assert.Nil(t, g.EncodeFrame())
}

func TestEncodeFrameAscendingOrder(t *testing.T) {
	g := newTestGroup()
	g.ix.slots[0] = "front"
	g.ix.slots[1] = "rear"
	g.collectors[0].wire = [][]byte{{1, 2, 3, 4}}
	g.collectors[1].wire = [][]byte{{5, 6, 7, 8}}

	frame := g.EncodeFrame()
	require.NotNil(t, frame)

	// header(2) + pose0(12) + wire0(4) + pose1(12) + wire1(4)
	assert.Len(t, frame, 2+12+4+12+4)
	assert.Equal(t, byte(1), frame[2+12])
	assert.Equal(t, byte(5), frame[2+12+4+12])
}
