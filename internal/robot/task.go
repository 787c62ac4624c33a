package robot

import "github.com/itohio/groundctl/internal/pathrec"

// taskKind discriminates the tagged variant spec.md section 3 names as
// Task: exactly one is active at a time, and transitions only happen
// through Robot's public Record/Track/Stop operations.
type taskKind int

const (
	taskIdle taskKind = iota
	taskWaitingPose
	taskRecord
	taskTrack
)

// task is the Task tagged variant. Only the fields matching kind are
// meaningful; the others are left zero.
type task struct {
	kind     taskKind
	recorder *pathrec.Recorder
	tracker  *pathrec.Tracker
}
