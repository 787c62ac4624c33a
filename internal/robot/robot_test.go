package robot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/groundctl/internal/chassis"
	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/lidar"
	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/internal/posefilter"
	"github.com/itohio/groundctl/internal/trajectory"
)

// fakeChassis is a concrete stand-in for chassisSupervisor: hand-written,
// not generated, per the teacher's preference for small fakes over a
// mocking framework.
type fakeChassis struct {
	driven     []physical.Physical
	rawTargets []physical.Physical
	predictor  trajectory.Predictor
	predictOK  bool
}

func (f *fakeChassis) Drive(p physical.Physical)              { f.driven = append(f.driven, p) }
func (f *fakeChassis) StoreRawTarget(p physical.Physical)     { f.rawTargets = append(f.rawTargets, p) }
func (f *fakeChassis) Events() <-chan chassis.Event           { return nil }
func (f *fakeChassis) Predict(target physical.Physical) (trajectory.Predictor, bool) {
	if !f.predictOK {
		return trajectory.Predictor{}, false
	}
	p := f.predictor
	p.Target = target
	return p, true
}

// fakeLidar is a concrete stand-in for lidarGroup, returning a canned
// collision result regardless of the trajectory it's asked to check.
type fakeLidar struct {
	info lidar.CollisionInfo
	hit  bool
}

func (f *fakeLidar) Check(trajectory.Predictor) (lidar.CollisionInfo, bool) { return f.info, f.hit }
func (f *fakeLidar) Events() <-chan lidar.Event                            { return nil }

func newTestRobot(chassisSup *fakeChassis, lidarGrp *fakeLidar) *Robot {
	return &Robot{
		chassis: chassisSup,
		lidar:   lidarGrp,
		filter:  posefilter.New(),
		events:  make(chan Event, 16),
	}
}

// Scenario 1 (spec.md section 8): a zero-speed drive is transparent to
// collision avoidance — the chassis sees exactly what was asked for and
// the emitted risk is zero, even with obstacles present.
func TestCheckAndDriveStopIsTransparent(t *testing.T) {
	fc := &fakeChassis{predictOK: true}
	fl := &fakeLidar{hit: true, info: lidar.CollisionInfo{Pose: physical.Odometry{S: 0.1}}}
	r := newTestRobot(fc, fl)

	r.checkAndDrive(physical.Physical{Speed: 0, Rudder: 0})

	require.Len(t, fc.driven, 1)
	assert.Equal(t, physical.Physical{Speed: 0, Rudder: 0}, fc.driven[0])

	ev := <-r.events
	assert.Equal(t, EventCollisionDetected, ev.Kind)
	assert.Equal(t, float32(0), ev.Risk)
}

// Scenario 2: a head-on obstacle reduces speed proportional to
// time-to-impact and biases the rudder away from the obstacle side
// (deterministic by the repulsion force's sign), without triggering
// the emergency release threshold.
func TestCheckAndDriveHeadOnObstacle(t *testing.T) {
	fc := &fakeChassis{
		predictOK: true,
		predictor: trajectory.New(kinematics.NewDifferential(0.05, 0.3), physical.Physical{}),
	}
	fl := &fakeLidar{
		hit: true,
		info: lidar.CollisionInfo{
			Time:  600 * time.Millisecond,
			Pose:  physical.Odometry{S: 0.3, A: 0.1},
			Risk:  1 / 1.3,
			Force: lidar.Force{X: 0, Y: 0.5},
		},
	}
	r := newTestRobot(fc, fl)

	r.checkAndDrive(physical.Physical{Speed: 0.5, Rudder: 0})

	require.Len(t, fc.driven, 1)
	got := fc.driven[0]
	assert.InDelta(t, 0.15, got.Speed, 1e-4, "speed *= time-to-impact/2")
	assert.Less(t, got.Rudder, float32(0), "positive force.y must bias rudder negative")

	ev := <-r.events
	assert.Equal(t, EventCollisionDetected, ev.Kind)
	assert.Greater(t, ev.Risk, float32(0))
	assert.LessOrEqual(t, ev.Risk, float32(1))
}

// Scenario 3: an imminent obstacle within the emergency-release
// thresholds (S < 0.2m, A < pi/8) forces a release rather than a
// reduced-speed drive, with risk pinned to 1.0.
func TestCheckAndDriveEmergencyRelease(t *testing.T) {
	fc := &fakeChassis{predictOK: true}
	fl := &fakeLidar{
		hit:  true,
		info: lidar.CollisionInfo{Time: 100 * time.Millisecond, Pose: physical.Odometry{S: 0.05, A: 0}},
	}
	r := newTestRobot(fc, fl)

	r.checkAndDrive(physical.Physical{Speed: 0.5, Rudder: 0})

	require.Len(t, fc.driven, 1)
	assert.True(t, fc.driven[0].IsReleased())

	ev := <-r.events
	assert.Equal(t, float32(1), ev.Risk)
}

// checkAndDrive does nothing when the chassis reports no predictor
// (disconnected) — a contract failure per spec.md section 7, not an
// error.
func TestCheckAndDriveNoChassisDoesNothing(t *testing.T) {
	fc := &fakeChassis{predictOK: false}
	fl := &fakeLidar{}
	r := newTestRobot(fc, fl)

	r.checkAndDrive(physical.Physical{Speed: 0.5, Rudder: 0})

	assert.Empty(t, fc.driven)
}

// Scenario 4: a joystick sample preempts manual drive for its whole
// deadline window, even when the external Drive call arrives after it.
func TestJoystickPreemptsManualDrive(t *testing.T) {
	fc := &fakeChassis{predictOK: true}
	fl := &fakeLidar{}
	r := newTestRobot(fc, fl)

	joystickTarget := physical.Physical{Speed: 0.2, Rudder: 0.1}
	r.JoystickDrive(joystickTarget)

	manualTarget := physical.Physical{Speed: 0.5, Rudder: -0.3}
	r.Drive(manualTarget)

	require.Len(t, fc.driven, 1, "manual drive must be suppressed while the joystick deadline is active")
	assert.Equal(t, joystickTarget, fc.driven[0])
}

// Once the joystick deadline has elapsed, manual drive resumes
// arbitrating normally.
func TestManualDriveResumesAfterJoystickDeadline(t *testing.T) {
	fc := &fakeChassis{predictOK: true}
	fl := &fakeLidar{}
	r := newTestRobot(fc, fl)

	r.deadlineMu.Lock()
	r.joystickDeadline = time.Now().Add(-time.Millisecond)
	r.deadlineMu.Unlock()

	manualTarget := physical.Physical{Speed: 0, Rudder: 0}
	r.Drive(manualTarget)

	require.Len(t, fc.driven, 1)
	assert.Equal(t, manualTarget, fc.driven[0])
}

// Scenario 7: record() then track() over the same poses; once tracking
// starts, the tracker must issue at least one drive.
func TestRecordThenTrackRoundTrip(t *testing.T) {
	fc := &fakeChassis{predictOK: true, predictor: trajectory.New(kinematics.NewDifferential(0.05, 0.3), physical.Physical{})}
	fl := &fakeLidar{} // no obstacles: every checkAndDrive call drives cleanly
	r := newTestRobot(fc, fl)
	r.cfg = Config{
		PathFile:           filepath.Join(t.TempDir(), "path"),
		RecordMinDistanceM: 0.01,
		RecordMinAngleRad:  0.01,
		TrackingSpeed:      0.3,
		TrackSearchRadiusM: 4,
		TrackSearchAngle:   3.14159,
		TrackLightRadiusM:  0.3,
	}

	r.Record()
	poses := []physical.Pose{{X: 0}, {X: 1}, {X: 2}, {X: 3}}
	for _, p := range poses {
		r.automatic(p)
	}
	r.Stop()

	require.NoError(t, r.Track())

	drivenBefore := len(fc.driven)
	for i := 0; i < 50; i++ {
		x := float32(i) * 0.2
		r.automatic(physical.Pose{X: x})
	}
	assert.Greater(t, len(fc.driven), drivenBefore, "tracking must have issued at least one drive")
}

