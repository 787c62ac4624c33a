// Package pathrec implements autonomous record-and-replay: an
// append-only file of SE(2) poses anchored at the first recorded
// pose, and a tracker that walks that path back, steering the robot
// along it.
package pathrec

import (
	"encoding/binary"
	"errors"
	"os"

	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/physical"
)

// ErrEmptyPath is returned by Load when the file contains no poses,
// since a tracker has nothing to steer toward.
var ErrEmptyPath = errors.New("pathrec: recorded path is empty")

const poseRecordSize = 12 // 3 x float32, little-endian

// Recorder appends poses to a path file, anchored at the pose it was
// opened with, skipping any pose that isn't "significantly different"
// from the last one actually saved.
type Recorder struct {
	f    *os.File
	last physical.Pose
	have bool

	minDistance float32
	minAngle    float32
}

// NewRecorder creates (truncating any previous contents of) path and
// immediately writes anchor as its first pose. minDistance (meters)
// and minAngle (radians) gate every subsequent Record call: a pose
// closer than both thresholds to the last saved one is dropped.
func NewRecorder(path string, anchor physical.Pose, minDistance, minAngle float32) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := &Recorder{f: f, minDistance: minDistance, minAngle: minAngle}
	if err := r.write(anchor); err != nil {
		f.Close()
		return nil, err
	}
	r.last, r.have = anchor, true
	return r, nil
}

// Record appends pose if it differs from the last saved pose by more
// than the recorder's distance or angle threshold, reporting whether
// it actually wrote a record.
func (r *Recorder) Record(pose physical.Pose) (bool, error) {
	if r.have && pose.Distance(r.last) < r.minDistance && pose.HeadingDelta(r.last) < r.minAngle {
		return false, nil
	}
	if err := r.write(pose); err != nil {
		return false, err
	}
	r.last, r.have = pose, true
	return true, nil
}

func (r *Recorder) write(pose physical.Pose) error {
	var buf [poseRecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], math32.Float32bits(pose.X))
	binary.LittleEndian.PutUint32(buf[4:8], math32.Float32bits(pose.Y))
	binary.LittleEndian.PutUint32(buf[8:12], math32.Float32bits(pose.Theta))
	_, err := r.f.Write(buf[:])
	return err
}

// Close flushes and releases the underlying file.
func (r *Recorder) Close() error {
	return r.f.Close()
}

// Path is an in-memory recorded path loaded in full, per spec.md
// section 6 ("the track loader reads the whole file").
type Path struct {
	Poses []physical.Pose
}

// Load reads every pose out of the file written by a Recorder.
func Load(path string) (Path, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Path{}, err
	}
	if len(raw)%poseRecordSize != 0 {
		raw = raw[:len(raw)-len(raw)%poseRecordSize]
	}
	n := len(raw) / poseRecordSize
	if n == 0 {
		return Path{}, ErrEmptyPath
	}
	poses := make([]physical.Pose, n)
	for i := 0; i < n; i++ {
		off := i * poseRecordSize
		poses[i] = physical.Pose{
			X:     math32.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4])),
			Y:     math32.Float32frombits(binary.LittleEndian.Uint32(raw[off+4 : off+8])),
			Theta: math32.Float32frombits(binary.LittleEndian.Uint32(raw[off+8 : off+12])),
		}
	}
	return Path{Poses: poses}, nil
}

// Sector bounds the forward search cone the tracker looks for its next
// lookahead point in: a radius in meters and the cone's full opening
// angle in radians, centered on the robot's heading (Angle/2 either
// side).
type Sector struct {
	Radius float32
	Angle  float32
}

// Context holds a Tracker's progress along its Path: the index of the
// last point consumed as a lookahead target, so Track never regresses
// backward along a path that loops near itself.
type Context struct {
	Search      Sector
	LightRadius float32
	cursor      int
}

// NewContext returns a Context starting at the beginning of whatever
// Path it's later paired with.
func NewContext(search Sector, lightRadius float32) Context {
	return Context{Search: search, LightRadius: lightRadius}
}

// Tracker advances a Context along a Path, steering toward the first
// unconsumed point, in path order, that is both within the search
// sector and at least LightRadius away (closer points are considered
// "already passed").
type Tracker struct {
	Path    Path
	Context Context
}

// Track consumes every point, in path order, that is closer than
// LightRadius, beyond the search radius or outside the sector, and
// returns a speed proportion k in (0,1] and a rudder command aimed at
// the first point that passes; that point stays the target until a
// later call skips it. ok is false once every point in Path has been consumed, meaning
// the path has been fully walked.
func (t *Tracker) Track(pose physical.Pose) (k, rudder float32, ok bool) {
	ctx := &t.Context
	poses := t.Path.Poses

	for ctx.cursor < len(poses) {
		target := poses[ctx.cursor]
		lx, ly := inverseTransform(pose, target.X, target.Y)
		dist := math32.Sqrt(lx*lx + ly*ly)

		if dist < ctx.LightRadius {
			ctx.cursor++
			continue
		}
		if dist > ctx.Search.Radius {
			ctx.cursor++
			continue
		}
		bearing := math32.Atan2(ly, lx)
		if math32.Abs(bearing) > ctx.Search.Angle/2 {
			ctx.cursor++
			continue
		}

		remaining := len(poses) - ctx.cursor
		k = 1
		if remaining < slowdownWindow {
			k = float32(remaining) / slowdownWindow
		}

		proportion := clamp(bearing/ctx.Search.Angle+0.5, 0, 1)
		rudder = clamp(-2*(proportion-0.5), -math32.Pi/2, math32.Pi/2)
		return k, rudder, true
	}

	return 0, 0, false
}

// slowdownWindow is how many remaining path points before the end the
// tracker starts proportionally slowing down, so it doesn't overshoot
// the final recorded pose at full tracking speed.
const slowdownWindow = 5

// inverseTransform maps a world-frame point into pose's local frame,
// the inverse of Pose.Transform.
func inverseTransform(pose physical.Pose, x, y float32) (float32, float32) {
	sin, cos := math32.Sincos(pose.Theta)
	dx, dy := x-pose.X, y-pose.Y
	return dx*cos + dy*sin, -dx*sin + dy*cos
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
