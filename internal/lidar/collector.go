package lidar

import (
	"encoding/binary"
	"sync"

	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/physical"
)

// point is one robot-frame obstacle sample, meters.
type point struct{ X, Y float32 }

// Collector owns the latest scan for one LIDAR index, keyed by the
// device's own section numbering: a spinning LIDAR reports sub-slices
// of a full rotation as they complete, and each newly completed
// section replaces that section's previous points rather than
// appending onto an ever-growing buffer. points and wire are parallel,
// indexed by section; both are mutated only by the owning Group
// goroutine and read under mu by Check/EncodeFrame.
type Collector struct {
	mu     sync.Mutex
	pose   physical.Pose
	points [][]point
	wire   [][]byte
}

// SetPose installs the per-index mounting transform (front/rear LIDAR
// extrinsics), applied to every subsequently collected point.
func (c *Collector) SetPose(p physical.Pose) {
	c.mu.Lock()
	c.pose = p
	c.mu.Unlock()
}

// Clear drops all buffered points and wire bytes, used when the
// physical mounting may have changed (reconnection, index reshuffle).
func (c *Collector) Clear() {
	c.mu.Lock()
	c.points = nil
	c.wire = nil
	c.mu.Unlock()
}

// Put converts section's worth of device-frame (range millimeters,
// bearing device-units) samples into robot-frame points and a
// fixed-width wire encoding, and installs both as that section's slot
// — replacing whatever that section held from the previous rotation,
// not accumulating onto it.
//
// bearingToRadians converts the device's raw bearing unit into
// radians; rangeToMeters converts raw range into meters. Both are
// supplied by the caller since they're device-specific.
func (c *Collector) Put(section int, raw []rawPoint, rangeToMeters, bearingToRadians func(uint16) float32) {
	pts := make([]point, len(raw))
	wire := make([]byte, 0, len(raw)*4)

	for i, r := range raw {
		rng := rangeToMeters(r.Range)
		bearing := bearingToRadians(r.Bearing)
		lx := rng * math32.Cos(bearing)
		ly := rng * math32.Sin(bearing)
		x, y := c.pose.Transform(lx, ly)
		pts[i] = point{x, y}

		var buf [4]byte
		binary.LittleEndian.PutUint16(buf[0:2], r.Range)
		binary.LittleEndian.PutUint16(buf[2:4], r.Bearing)
		wire = append(wire, buf[:]...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.growTo(section)
	c.points[section] = pts
	c.wire[section] = wire
}

// growTo extends points/wire so index i is valid, leaving any newly
// added sections empty until their own Put call arrives.
func (c *Collector) growTo(i int) {
	for len(c.points) <= i {
		c.points = append(c.points, nil)
	}
	for len(c.wire) <= i {
		c.wire = append(c.wire, nil)
	}
}

// rawPoint is the device-unit sample shape Put accepts, decoupled from
// lidardrv.Point so this package has no import-time dependency on the
// driver layer's exact type.
type rawPoint struct {
	Range   uint16
	Bearing uint16
}

// snapshotPoints returns a flat copy of every section's currently
// buffered points, safe to use without holding the collector's lock
// afterward.
func (c *Collector) snapshotPoints() []point {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, sec := range c.points {
		n += len(sec)
	}
	out := make([]point, 0, n)
	for _, sec := range c.points {
		out = append(out, sec...)
	}
	return out
}

// writeFrame appends this collector's pose header and wire bytes to
// dst, matching the external frame format: Pose{x,y,theta} as three
// little-endian f32s, then the compressed point bytes, sections
// concatenated in index order.
func (c *Collector) writeFrame(dst []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hdr [12]byte
	putF32(hdr[0:4], c.pose.X)
	putF32(hdr[4:8], c.pose.Y)
	putF32(hdr[8:12], c.pose.Theta)
	dst = append(dst, hdr[:]...)
	for _, sec := range c.wire {
		dst = append(dst, sec...)
	}
	return dst
}
