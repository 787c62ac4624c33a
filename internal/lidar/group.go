// Package lidar implements the two-device LIDAR supervisor: stable
// per-device indexing, per-index point collectors, frame encoding and
// the trajectory-vs-point-cloud collision detector.
package lidar

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/lidardrv"
	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/internal/trajectory"
	"github.com/itohio/groundctl/pkg/logging"
)

// DeviceCount is the number of LIDAR slots this group manages.
const DeviceCount = 2

// checkStepDistance and checkStepAngle bound how often the collision
// loop actually re-tests the polygon against the point buffer, per the
// "advance a real check step only past 5cm or 10deg" rule.
const (
	checkStepDistance = 0.05
	checkStepAngle    = 10 * math32.Pi / 180
	lookaheadCutoff   = 2 * time.Second
)

// Force is a 2-D repulsion vector in the robot frame.
type Force struct{ X, Y float32 }

// CollisionInfo is the result of a hit during Check.
type CollisionInfo struct {
	Time  time.Duration
	Pose  physical.Odometry
	Risk  float32
	Force Force
}

// EventKind discriminates Group-level notifications.
type EventKind int

const (
	EventFrameEncoded EventKind = iota
	EventIndexChanged
)

// Event is one group-level notification.
type Event struct {
	Kind  EventKind
	Frame []byte
}

// Opener constructs (or re-opens) one of the group's Driver slots.
type Opener func(ctx context.Context, slot int) (lidardrv.Driver, error)

// mountPoses are the fixed front/rear extrinsics applied to each
// index's points. Index 0 is the front-mounted unit, index 1 is
// rear-mounted (rotated 180 degrees).
var mountPoses = [DeviceCount]physical.Pose{
	{X: 0.2, Y: 0, Theta: 0},
	{X: -0.2, Y: 0, Theta: math32.Pi},
}

// Group manages DeviceCount LIDAR devices with stable per-identifier
// indexing, emitting encoded frames on a fixed cadence and answering
// synchronous collision checks against the live point buffer.
type Group struct {
	open Opener

	ix         *indexer
	collectors [DeviceCount]*Collector

	events chan Event
}

// New returns a Group that has not yet started its connection loops;
// call Run to start the per-slot supervisors and the frame-emission
// ticker.
func New(open Opener) *Group {
	g := &Group{
		open:   open,
		ix:     newIndexer(DeviceCount),
		events: make(chan Event, 16),
	}
	for i := range g.collectors {
		g.collectors[i] = &Collector{pose: mountPoses[i]}
	}
	return g
}

// Events returns the channel the group publishes frame/index events
// on.
func (g *Group) Events() <-chan Event {
	return g.events
}

// Run starts one reconnection goroutine per physical slot plus the
// 100ms frame-emission ticker, and blocks until ctx is done.
func (g *Group) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for slot := 0; slot < DeviceCount; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			g.runSlot(ctx, slot)
		}(slot)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			g.emitFrame()
		}
	}
}

func (g *Group) runSlot(ctx context.Context, slot int) {
	log := logging.Named("lidar")

	for {
		if ctx.Err() != nil {
			return
		}

		drv, err := g.open(ctx, slot)
		if err != nil {
			log.Debug().Int("slot", slot).Err(err).Msg("open failed, backing off")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		g.runConnected(ctx, drv)
	}
}

func (g *Group) runConnected(ctx context.Context, drv lidardrv.Driver) {
	defer drv.Close()

	id := drv.Identifier()
	index, changed, ok := g.ix.assign(id)
	if !ok {
		// Both slots occupied by other identifiers: nothing we can do
		// with a third device until one frees up.
		return
	}
	if changed {
		g.clearFrom(index)
		g.publish(Event{Kind: EventIndexChanged})
	}

	drv.SetFilter(frontRearFilter(index))

	scans, err := drv.Scans(ctx)
	if err != nil {
		// Slot stays reserved for id: a disconnect never frees an
		// index, only a never-before-seen identifier claims a fresh
		// one (spec.md scenario 5's retention requirement).
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case scan, ok := <-scans:
			if !ok {
				return
			}
			raw := make([]rawPoint, len(scan.Points))
			for i, p := range scan.Points {
				raw[i] = rawPoint{Range: p.Range, Bearing: p.Bearing}
			}
			g.collectors[index].Put(scan.Section, raw, rangeMM, bearingUnits)
		}
	}
}

// clearFrom resets the collectors for every index at or after i, since
// a reassignment that far down the slot list may mean every device
// past it has also shifted mounting assumptions.
func (g *Group) clearFrom(i int) {
	for ; i < DeviceCount; i++ {
		g.collectors[i].Clear()
	}
}

func (g *Group) publish(ev Event) {
	select {
	case g.events <- ev:
	default:
	}
}

func (g *Group) emitFrame() {
	frame := g.EncodeFrame()
	if frame == nil {
		return
	}
	g.publish(Event{Kind: EventFrameEncoded, Frame: frame})
}

// EncodeFrame produces the 2-byte-length-prefixed wire frame:
// ascending index order, each a 12-byte Pose header followed by that
// index's compressed point bytes. Returns nil when no index is
// currently occupied.
func (g *Group) EncodeFrame() []byte {
	any := false
	for i := range g.ix.slots {
		if g.ix.slots[i] != "" {
			any = true
			break
		}
	}
	if !any {
		return nil
	}

	body := make([]byte, 0, 256)
	for i := 0; i < DeviceCount; i++ {
		if g.ix.slots[i] == "" {
			continue
		}
		body = g.collectors[i].writeFrame(body)
	}

	out := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(out[:2], uint16(len(body)))
	copy(out[2:], body)
	return out
}

// Check synchronously walks tr against the live point buffer,
// returning the first collision found within a 2-second look-ahead.
func (g *Group) Check(tr trajectory.Predictor) (CollisionInfo, bool) {
	var elapsed time.Duration
	var odom physical.Odometry
	var sub physical.Odometry

	for elapsed < lookaheadCutoff {
		dt, delta, ok := tr.Next()
		if !ok {
			break
		}
		elapsed += dt
		odom = odom.Add(delta)
		sub = sub.Add(delta)

		if sub.S < checkStepDistance && sub.A < checkStepAngle {
			continue
		}
		sub = physical.Odometry{}

		size := 1 + odom.S
		poly, minX, minY, maxX, maxY := inflatedOutline(size, odom.Pose)

		for _, c := range g.collectors {
			pts := c.snapshotPoints()
			for _, p := range pts {
				if p.X < minX || p.X > maxX || p.Y < minY || p.Y > maxY {
					continue
				}
				if !containsPoint(poly, p.X, p.Y) {
					continue
				}
				return CollisionInfo{
					Time:  elapsed,
					Pose:  odom,
					Risk:  1 / size,
					Force: repulsionForce(allPoints(g.collectors[:]), odom.Pose, size),
				}, true
			}
		}
	}
	return CollisionInfo{}, false
}

func allPoints(collectors []*Collector) []point {
	var out []point
	for _, c := range collectors {
		out = append(out, c.snapshotPoints()...)
	}
	return out
}

// repulsionForce implements spec step 4: transform every buffered
// point into the predicted pose's frame, keep those inside the unit
// circle, project each through -p/|p|^2, split left/right by sign of
// y, average each half, sum, and normalize by size.
func repulsionForce(pts []point, pose physical.Pose, size float32) Force {
	sin, cos := math32.Sincos(pose.Theta)

	var leftSum, rightSum Force
	var leftN, rightN int

	for _, p := range pts {
		dx, dy := p.X-pose.X, p.Y-pose.Y
		lx := dx*cos + dy*sin
		ly := -dx*sin + dy*cos

		d2 := lx*lx + ly*ly
		if d2 >= 1 || d2 == 0 {
			continue
		}

		fx, fy := -lx/d2, -ly/d2
		if ly > 0 {
			leftSum.X += fx
			leftSum.Y += fy
			leftN++
		} else {
			rightSum.X += fx
			rightSum.Y += fy
			rightN++
		}
	}

	var left, right Force
	if leftN > 0 {
		left = Force{leftSum.X / float32(leftN), leftSum.Y / float32(leftN)}
	}
	if rightN > 0 {
		right = Force{rightSum.X / float32(rightN), rightSum.Y / float32(rightN)}
	}

	return Force{(left.X + right.X) / size, (left.Y + right.Y) / size}
}

// frontRearFilter returns the ~120deg body-exclusion window
// appropriate to a device mounted at index (0=front, 1=rear).
func frontRearFilter(index int) lidardrv.FilterFunc {
	if index == 0 {
		return func(p lidardrv.Point) bool {
			b := bearingUnits(p.Bearing)
			return b > math32.Pi-math32.Pi/3 && b < math32.Pi+math32.Pi/3
		}
	}
	return func(p lidardrv.Point) bool {
		b := bearingUnits(p.Bearing)
		return b < math32.Pi/3 || b > 2*math32.Pi-math32.Pi/3
	}
}

// rangeMM converts the device's raw millimeter range into meters.
func rangeMM(raw uint16) float32 {
	return float32(raw) / 1000
}

// bearingUnits converts the device's raw bearing unit (0..65535 over a
// full turn) into radians.
func bearingUnits(raw uint16) float32 {
	return float32(raw) / 65536 * 2 * math32.Pi
}
