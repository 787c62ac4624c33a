// Package robot implements the drive arbitrator: the facade spec.md
// section 4.4 calls the Robot, fusing the chassis supervisor, the
// LIDAR group, an optional RTK receiver and the pose filter into the
// runtime's single point of control — joystick/manual/autonomous
// priority, active collision avoidance, and the outward event stream.
package robot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/chassis"
	"github.com/itohio/groundctl/internal/chassisdrv"
	"github.com/itohio/groundctl/internal/devicecode"
	"github.com/itohio/groundctl/internal/lidar"
	"github.com/itohio/groundctl/internal/pathrec"
	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/internal/posefilter"
	"github.com/itohio/groundctl/internal/rtk"
	"github.com/itohio/groundctl/internal/trajectory"
	"github.com/itohio/groundctl/pkg/logging"
)

// joystickTimeout and artificialTimeout are the deadline windows
// spec.md section 4.4 assigns to joystick and manual-drive priority.
const (
	joystickTimeout   = 500 * time.Millisecond
	artificialTimeout = 500 * time.Millisecond
)

// activeCollisionAvoiding scales how strongly a repulsion force's
// y-component biases the rudder, per spec.md section 4.4's
// check_and_drive formula.
const activeCollisionAvoiding = 2.5

// chassisSupervisor is the slice of *chassis.Supervisor's API the
// arbitrator depends on, small enough that tests substitute a fake
// without standing up a real reconnection loop.
type chassisSupervisor interface {
	Drive(physical.Physical)
	StoreRawTarget(physical.Physical)
	Predict(physical.Physical) (trajectory.Predictor, bool)
	Events() <-chan chassis.Event
}

// lidarGroup is the slice of *lidar.Group's API the arbitrator depends
// on.
type lidarGroup interface {
	Check(trajectory.Predictor) (lidar.CollisionInfo, bool)
	Events() <-chan lidar.Event
}

// rtkSupervisor is the slice of *rtk.Supervisor's API the arbitrator
// depends on. A nil rtkSupervisor means the robot runs without RTK
// (spec.md's "optional RTK-GNSS receiver").
type rtkSupervisor interface {
	Events() <-chan rtk.Event
	Adequate(rtk.Fix) bool
}

// Config carries the Open-Question decisions and tunables an
// integrator must supply; see DESIGN.md for defaults and rationale.
type Config struct {
	PathFile           string
	RecordMinDistanceM float32
	RecordMinAngleRad  float32
	TrackingSpeed      float32
	TrackSearchRadiusM float32
	TrackSearchAngle   float32
	TrackLightRadiusM  float32
}

// Robot is the drive arbitrator / facade described in spec.md section
// 4.4: owns the manual/joystick deadlines, the current autonomous
// Task, the fused pose estimate, and the outward event stream.
type Robot struct {
	cfg Config

	chassis chassisSupervisor
	lidar   lidarGroup
	rtk     rtkSupervisor
	filter  *posefilter.Filter
	code    devicecode.Atomic

	events chan Event

	deadlineMu         sync.Mutex
	joystickDeadline   time.Time
	artificialDeadline time.Time

	taskMu sync.Mutex
	task   task

	trackingSpeed atomic.Uint32 // float32 bits, load/store via math32

	odomMu  sync.Mutex
	odomS   float32
	odomA   float32
	relPose physical.Pose
}

// New returns a Robot wired to the given supervisors. rtkSup may be
// nil. The returned Robot has not started consuming supervisor events
// yet; call Run in its own goroutine.
func New(cfg Config, chassisSup *chassis.Supervisor, lidarGrp *lidar.Group, rtkSup *rtk.Supervisor) *Robot {
	r := &Robot{
		cfg:     cfg,
		chassis: chassisSup,
		lidar:   lidarGrp,
		filter:  posefilter.New(),
		events:  make(chan Event, 256),
	}
	if rtkSup != nil {
		r.rtk = rtkSup
	}
	r.trackingSpeed.Store(math32.Float32bits(cfg.TrackingSpeed))
	return r
}

// Events returns the channel the robot publishes its outward event
// stream on. The channel is never closed while Run is active.
func (r *Robot) Events() <-chan Event {
	return r.events
}

// SetTrackingSpeed changes the forward speed the autonomous tracker
// scales by its steering proportion. Safe to call concurrently with
// Run.
func (r *Robot) SetTrackingSpeed(v float32) {
	r.trackingSpeed.Store(math32.Float32bits(v))
}

// Run starts the chassis/LIDAR/RTK fan-in loops and blocks until ctx
// is cancelled. The supervisors' own Run loops are started by the
// caller (main wiring), not here, so tests can drive fake supervisors
// through the same fan-in logic without a hardware reconnection loop
// running alongside them.
func (r *Robot) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); r.consumeChassis(ctx) }()

	if r.lidar != nil {
		wg.Add(1)
		go func() { defer wg.Done(); r.consumeLidar(ctx) }()
	}

	if r.rtk != nil {
		wg.Add(1)
		go func() { defer wg.Done(); r.consumeRTK(ctx) }()
	}

	<-ctx.Done()
	wg.Wait()
}

func (r *Robot) consumeChassis(ctx context.Context) {
	ch := r.chassis.Events()
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handleChassisEvent(ev)
		}
	}
}

func (r *Robot) handleChassisEvent(ev chassis.Event) {
	switch ev.Kind {
	case chassis.EventConnected:
		if code, changed := r.code.Set(devicecode.BitChassis); changed {
			r.publishConnection(ev.Time, code)
		}
	case chassis.EventDisconnected:
		if code, changed := r.code.Clear(devicecode.BitChassis, devicecode.BitPowerSwitch); changed {
			r.publishConnection(ev.Time, code)
		}
	case chassis.EventStatusUpdated:
		r.publish(Event{Time: ev.Time, Kind: EventChassisStatusUpdated, ChassisStatus: ev.Status})
		r.setPowerSwitchBit(ev.Time, ev.Status)
	case chassis.EventOdometryUpdated:
		r.handleOdometry(ev.Time, ev.Delta)
	}
}

func (r *Robot) setPowerSwitchBit(t time.Time, status chassisdrv.Status) {
	var code devicecode.Code
	var changed bool
	if status.PowerSwitchReleased {
		code, changed = r.code.Set(devicecode.BitPowerSwitch)
	} else {
		code, changed = r.code.Clear(devicecode.BitPowerSwitch)
	}
	if changed {
		r.publishConnection(t, code)
	}
}

func (r *Robot) handleOdometry(t time.Time, delta physical.Odometry) {
	r.odomMu.Lock()
	r.odomS += delta.S
	r.odomA += delta.A
	r.relPose = r.relPose.Compose(delta.Pose)
	s, a, rel := r.odomS, r.odomA, r.relPose
	r.odomMu.Unlock()

	r.publish(Event{Time: t, Kind: EventChassisOdometerUpdated, OdomS: s, OdomA: a})

	fused := r.filter.Update(posefilter.Relative, t, rel)
	r.publish(Event{Time: t, Kind: EventPoseUpdated, Pose: fused})
	r.automatic(fused)
}

func (r *Robot) consumeLidar(ctx context.Context) {
	ch := r.lidar.Events()
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == lidar.EventFrameEncoded {
				r.publish(Event{Time: time.Now(), Kind: EventLidarFrameEncoded, Frame: ev.Frame})
			}
		}
	}
}

func (r *Robot) consumeRTK(ctx context.Context) {
	ch := r.rtk.Events()
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handleRTKEvent(ev)
		}
	}
}

func (r *Robot) handleRTKEvent(ev rtk.Event) {
	switch ev.Kind {
	case rtk.EventConnected:
		if code, changed := r.code.Set(devicecode.BitRTKLink); changed {
			r.publishConnection(ev.Time, code)
		}
	case rtk.EventDisconnected:
		if code, changed := r.code.Clear(devicecode.BitRTKLink, devicecode.BitRTKAdequate, devicecode.BitRTKConverged); changed {
			r.publishConnection(ev.Time, code)
		}
	case rtk.EventFix:
		r.handleFix(ev.Time, ev.Fix)
	}
}

func (r *Robot) handleFix(t time.Time, fix rtk.Fix) {
	adequate := r.rtk.Adequate(fix)
	status := RtkStatus{PositionState: fix.PositionState, DirectionState: fix.DirectionState, Adequate: adequate}
	r.publish(Event{Time: t, Kind: EventRtkStatusUpdated, Rtk: status})

	if !adequate {
		if code, changed := r.code.Clear(devicecode.BitRTKAdequate, devicecode.BitRTKConverged); changed {
			r.publishConnection(t, code)
		}
		return
	}

	if code, changed := r.code.Set(devicecode.BitRTKAdequate, devicecode.BitRTKConverged); changed {
		r.publishConnection(t, code)
	}

	// A single GNSS antenna carries no heading; keep whatever heading
	// the relative estimate currently holds and only correct position.
	heading := r.filter.Current().Theta
	absolute := physical.Pose{X: float32(fix.Lat), Y: float32(fix.Lon), Theta: heading}
	fused := r.filter.Update(posefilter.Absolute, t, absolute)
	r.publish(Event{Time: t, Kind: EventPoseUpdated, Pose: fused})
}

func (r *Robot) publishConnection(t time.Time, code devicecode.Code) {
	r.publish(Event{Time: t, Kind: EventConnectionModified, Code: code})
}

func (r *Robot) publish(ev Event) {
	select {
	case r.events <- ev:
	default:
		// A full buffer means nothing is draining the event stream;
		// dropping here keeps the fan-in loops from ever blocking on a
		// slow or absent UI consumer.
	}
}

// Drive is the manual-drive entry point: external callers overwrite
// the target, subject to collision avoidance, unless a joystick sample
// is currently active (spec.md's joystick-preempts-manual priority).
func (r *Robot) Drive(p physical.Physical) {
	if r.joystickActive() {
		return
	}
	r.deadlineMu.Lock()
	r.artificialDeadline = time.Now().Add(artificialTimeout)
	r.deadlineMu.Unlock()
	r.checkAndDrive(p)
}

// JoystickDrive is the highest-priority manual entry point. Its writes
// bypass collision avoidance entirely, per spec.md section 4.4.
func (r *Robot) JoystickDrive(p physical.Physical) {
	r.deadlineMu.Lock()
	r.joystickDeadline = time.Now().Add(joystickTimeout)
	r.deadlineMu.Unlock()
	r.chassis.StoreRawTarget(p)
	r.chassis.Drive(p)
}

func (r *Robot) joystickActive() bool {
	r.deadlineMu.Lock()
	defer r.deadlineMu.Unlock()
	return time.Now().Before(r.joystickDeadline)
}

func (r *Robot) artificialActive() bool {
	r.deadlineMu.Lock()
	defer r.deadlineMu.Unlock()
	return time.Now().Before(r.artificialDeadline)
}

// Record transitions the autonomous task to WaitingPose: the next pose
// update opens the record file anchored at that pose.
func (r *Robot) Record() {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	r.closeRecorderLocked()
	r.task = task{kind: taskWaitingPose}
}

// Track loads the recorded path and transitions the autonomous task to
// Track. A failure to open the path file is a Fatal error per spec.md
// section 7, propagated to the caller rather than silently ignored.
func (r *Robot) Track() error {
	path, err := pathrec.Load(r.cfg.PathFile)
	if err != nil {
		return err
	}

	ctx := pathrec.NewContext(pathrec.Sector{Radius: r.cfg.TrackSearchRadiusM, Angle: r.cfg.TrackSearchAngle}, r.cfg.TrackLightRadiusM)
	tracker := &pathrec.Tracker{Path: path, Context: ctx}

	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	r.closeRecorderLocked()
	r.task = task{kind: taskTrack, tracker: tracker}
	return nil
}

// Stop returns the autonomous task to Idle, closing any in-progress
// recording file.
func (r *Robot) Stop() {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	r.closeRecorderLocked()
	r.task = task{kind: taskIdle}
}

func (r *Robot) closeRecorderLocked() {
	if r.task.kind == taskRecord && r.task.recorder != nil {
		r.task.recorder.Close()
	}
}

// automatic drives the Task state machine on every fused pose update,
// per spec.md section 4.4.
func (r *Robot) automatic(pose physical.Pose) {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()

	switch r.task.kind {
	case taskIdle:
		// nothing to do
	case taskWaitingPose:
		rec, err := pathrec.NewRecorder(r.cfg.PathFile, pose, r.cfg.RecordMinDistanceM, r.cfg.RecordMinAngleRad)
		if err != nil {
			log := logging.Named("robot")
			log.Warn().Err(err).Msg("failed to open record file")
			r.task = task{kind: taskIdle}
			return
		}
		r.task = task{kind: taskRecord, recorder: rec}
	case taskRecord:
		r.task.recorder.Record(pose)
	case taskTrack:
		if r.joystickActive() || r.artificialActive() {
			return
		}
		k, rudder, ok := r.task.tracker.Track(pose)
		if !ok {
			return
		}
		speed := math32.Float32frombits(r.trackingSpeed.Load())
		r.checkAndDrive(physical.Physical{Speed: speed * k, Rudder: rudder})
	}
}

// checkAndDrive implements spec.md section 4.4's collision-avoidance
// decision, shared by manual drive and the autonomous tracker.
func (r *Robot) checkAndDrive(p physical.Physical) {
	r.chassis.StoreRawTarget(p)

	if p.IsStatic() {
		r.driveAndWarn(p, 0)
		return
	}

	tr, ok := r.chassis.Predict(p)
	if !ok {
		// Chassis disconnected: nothing to drive or predict against.
		return
	}

	collision, hit := r.lidar.Check(tr)
	if !hit {
		r.driveAndWarn(p, 0)
		return
	}

	if collision.Pose.S < 0.2 && collision.Pose.A < math32.Pi/8 {
		r.driveAndWarn(physical.Released, 1.0)
		return
	}

	sec := float32(collision.Time) / float32(time.Second)
	p.Speed *= sec / 2

	modifier := -math32.Atan2(collision.Force.Y, activeCollisionAvoiding)
	if modifier > 0 {
		p.Rudder = math32.Min(p.Rudder+modifier, math32.Pi/2)
	} else {
		p.Rudder = math32.Max(p.Rudder+modifier, -math32.Pi/2)
	}

	risk := math32.Min(1, (2-sec)*collision.Risk)
	r.driveAndWarn(p, risk)
}

func (r *Robot) driveAndWarn(p physical.Physical, risk float32) {
	r.chassis.Drive(p)
	r.publish(Event{Time: time.Now(), Kind: EventCollisionDetected, Risk: risk})
}
